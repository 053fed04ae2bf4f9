package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/growth/internal/date"
)

var (
	// ErrNotReconciled is returned by Grant before any Reconcile.
	ErrNotReconciled = errors.New("session not reconciled")

	// ErrSessionMismatch is returned by Grant for a user other than the one
	// last reconciled.
	ErrSessionMismatch = errors.New("grant for a user outside the reconciled session")

	// ErrInvalidAmount is returned for a negative grant.
	ErrInvalidAmount = errors.New("award amount must not be negative")
)

// DailyCeilingExceededError is returned when a grant would push the day's
// total past the ceiling. Nothing is mutated.
type DailyCeilingExceededError struct {
	UserID    string
	Day       date.Date
	Ceiling   int // Configured per-day limit
	Requested int // Amount asked for
	Remaining int // Amount still grantable today
}

// Error implements the error interface.
func (e *DailyCeilingExceededError) Error() string {
	return fmt.Sprintf("daily experience ceiling reached for %s on %s: requested %d, %d of %d remaining",
		e.UserID, e.Day, e.Requested, e.Remaining, e.Ceiling)
}

// IsDailyCeilingExceeded returns true if the error is a DailyCeilingExceededError.
// Uses errors.As to handle wrapped errors.
func IsDailyCeilingExceeded(err error) bool {
	var ce *DailyCeilingExceededError
	return errors.As(err, &ce)
}

// AlreadyCreditedTodayError is returned when a per-day-limited source has
// already been credited today. Nothing is mutated.
type AlreadyCreditedTodayError struct {
	UserID   string
	SourceID string
	Day      date.Date
}

// Error implements the error interface.
func (e *AlreadyCreditedTodayError) Error() string {
	return fmt.Sprintf("%q already credited for %s on %s", e.SourceID, e.UserID, e.Day)
}

// IsAlreadyCreditedToday returns true if the error is an AlreadyCreditedTodayError.
// Uses errors.As to handle wrapped errors.
func IsAlreadyCreditedToday(err error) bool {
	var ac *AlreadyCreditedTodayError
	return errors.As(err, &ac)
}

// IsRejection reports whether err is a policy rejection of a grant rather
// than a failure.
func IsRejection(err error) bool {
	return IsDailyCeilingExceeded(err) || IsAlreadyCreditedToday(err)
}
