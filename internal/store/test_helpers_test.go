package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/growth/internal/date"
	"github.com/roach88/growth/internal/progress"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestProgress creates a valid record with the given counters.
func createTestProgress(userID string, xp, level, streak int, lastActive string) progress.UserProgress {
	p := progress.UserProgress{
		UserID:      userID,
		Experience:  xp,
		Level:       level,
		StreakCount: streak,
	}
	if lastActive != "" {
		p.LastActiveDate = date.MustParse(lastActive)
	}
	return p
}
