package engine

import "github.com/roach88/growth/internal/date"

// DefaultDailyCeiling is the maximum experience grantable per calendar day.
const DefaultDailyCeiling = 100

// CeilingEnforcer checks grants against the per-day experience limit.
//
// The limit is per calendar day, not a rolling 24-hour window: the ledger
// total it is given is always the total for the grant's local date.
type CeilingEnforcer struct {
	ceiling int
}

// NewCeilingEnforcer creates an enforcer with the given per-day limit.
func NewCeilingEnforcer(ceiling int) *CeilingEnforcer {
	return &CeilingEnforcer{ceiling: ceiling}
}

// Check returns a DailyCeilingExceededError if adding amount to total would
// exceed the limit.
func (c *CeilingEnforcer) Check(userID string, day date.Date, total, amount int) error {
	if total+amount > c.ceiling {
		return &DailyCeilingExceededError{
			UserID:    userID,
			Day:       day,
			Ceiling:   c.ceiling,
			Requested: amount,
			Remaining: c.Remaining(total),
		}
	}
	return nil
}

// Remaining returns how much can still be granted given today's total.
func (c *CeilingEnforcer) Remaining(total int) int {
	if total >= c.ceiling {
		return 0
	}
	return c.ceiling - total
}

// Ceiling returns the per-day limit.
func (c *CeilingEnforcer) Ceiling() int {
	return c.ceiling
}
