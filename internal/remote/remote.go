// Package remote defines the durable, cross-device progress store the engine
// reconciles against, and its implementations.
//
// A Store may be unreachable at any time. Implementations wrap every
// transport failure with ErrUnavailable so callers can recover locally. An
// absent record is reported as (nil, nil), never as zero progress.
package remote

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/roach88/growth/internal/date"
	"github.com/roach88/growth/internal/progress"
)

// ErrUnavailable reports that the remote store could not be reached.
var ErrUnavailable = errors.New("remote store unavailable")

// Store is the remote progress document store.
type Store interface {
	// Fetch returns the stored record for userID, or nil if none exists.
	Fetch(ctx context.Context, userID string) (*progress.UserProgress, error)

	// Upsert merge-writes the non-nil fields of patch, creating the record
	// if absent.
	Upsert(ctx context.Context, userID string, patch Patch) error
}

// Patch is a partial update. Only non-nil fields are written. A JSON null
// decodes to a nil field, so no patch can clear LastActiveDate.
type Patch struct {
	Experience              *int           `json:"experience,omitempty"`
	Level                   *int           `json:"level,omitempty"`
	StreakCount             *int           `json:"streakCount,omitempty"`
	LastActiveDate          *date.Date     `json:"lastActiveDate,omitempty"`
	TasksCompletedCount     *int           `json:"tasksCompletedCount,omitempty"`
	PerTaskCompletionCounts map[string]int `json:"perTaskCompletionCounts,omitempty"`
}

// FullPatch returns a patch carrying every engine-owned field of p. A zero
// LastActiveDate is left out, matching how the document service decodes null.
func FullPatch(p progress.UserProgress) Patch {
	counts := maps.Clone(p.PerTaskCompletionCounts)
	if counts == nil {
		counts = map[string]int{}
	}
	patch := Patch{
		Experience:              ptr(p.Experience),
		Level:                   ptr(p.Level),
		StreakCount:             ptr(p.StreakCount),
		TasksCompletedCount:     ptr(p.TasksCompletedCount),
		PerTaskCompletionCounts: counts,
	}
	if !p.LastActiveDate.IsZero() {
		patch.LastActiveDate = ptr(p.LastActiveDate)
	}
	return patch
}

// IsEmpty reports whether the patch writes nothing.
func (p Patch) IsEmpty() bool {
	return p.Experience == nil && p.Level == nil && p.StreakCount == nil &&
		p.LastActiveDate == nil && p.TasksCompletedCount == nil &&
		p.PerTaskCompletionCounts == nil
}

// Apply returns a copy of base with the patch's fields written over it.
func (p Patch) Apply(base progress.UserProgress) progress.UserProgress {
	out := base.Clone()
	if p.Experience != nil {
		out.Experience = *p.Experience
	}
	if p.Level != nil {
		out.Level = *p.Level
	}
	if p.StreakCount != nil {
		out.StreakCount = *p.StreakCount
	}
	if p.LastActiveDate != nil {
		out.LastActiveDate = *p.LastActiveDate
	}
	if p.TasksCompletedCount != nil {
		out.TasksCompletedCount = *p.TasksCompletedCount
	}
	if p.PerTaskCompletionCounts != nil {
		out.PerTaskCompletionCounts = maps.Clone(p.PerTaskCompletionCounts)
	}
	return out
}

// Document is the wire shape of a stored record: the progress fields plus
// the server-set modification time.
type Document struct {
	progress.UserProgress
	UpdatedAt time.Time `json:"updatedAt"`
}

func ptr[T any](v T) *T { return &v }
