// Package progress defines the per-user progress record shared by the local
// cache, the remote document store and the engine.
//
// Level is a derived field: it is always recomputed from Experience through a
// level.Table and is stored only so that readers of a persisted record do not
// need the table to display it.
package progress

import (
	"fmt"
	"maps"

	"github.com/roach88/growth/internal/date"
)

// UserProgress is the authoritative per-user record.
type UserProgress struct {
	UserID                  string         `json:"userId"`
	Experience              int            `json:"experience"`
	Level                   int            `json:"level"`
	StreakCount             int            `json:"streakCount"`
	LastActiveDate          date.Date      `json:"lastActiveDate"`
	TasksCompletedCount     int            `json:"tasksCompletedCount"`
	PerTaskCompletionCounts map[string]int `json:"perTaskCompletionCounts,omitempty"`
}

// Empty returns the defaults used when a copy is missing: experience 0,
// level 1, streak 0, no last-active date.
func Empty(userID string) UserProgress {
	return UserProgress{UserID: userID, Level: 1}
}

// Clone returns a deep copy.
func (p UserProgress) Clone() UserProgress {
	out := p
	if p.PerTaskCompletionCounts != nil {
		out.PerTaskCompletionCounts = maps.Clone(p.PerTaskCompletionCounts)
	}
	return out
}

// Validate checks the invariants a persisted record must satisfy.
// It does not check Level against a table.
func (p UserProgress) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("progress: missing user id")
	}
	if p.Experience < 0 {
		return fmt.Errorf("progress: negative experience %d", p.Experience)
	}
	if p.Level < 1 {
		return fmt.Errorf("progress: level %d below 1", p.Level)
	}
	if p.StreakCount < 0 {
		return fmt.Errorf("progress: negative streak %d", p.StreakCount)
	}
	if p.TasksCompletedCount < 0 {
		return fmt.Errorf("progress: negative task count %d", p.TasksCompletedCount)
	}
	for id, n := range p.PerTaskCompletionCounts {
		if n < 0 {
			return fmt.Errorf("progress: negative completion count %d for %q", n, id)
		}
	}
	return nil
}

// AwardResult is what a successful grant returns to the caller.
type AwardResult struct {
	EventID        string    `json:"eventId,omitempty"`
	Day            date.Date `json:"day"`
	Awarded        int       `json:"awarded"`
	NewExperience  int       `json:"newExperience"`
	NewLevel       int       `json:"newLevel"`
	LeveledUp      bool      `json:"leveledUp"`
	NewStreak      int       `json:"newStreak"`
	RemainingToday int       `json:"remainingToday"`
}
