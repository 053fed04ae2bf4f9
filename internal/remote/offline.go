package remote

import (
	"context"

	"github.com/roach88/growth/internal/progress"
)

// Offline is a Store that is never reachable. It stands in when no remote
// is configured, so the engine runs purely on the local cache.
type Offline struct{}

// Fetch implements Store.
func (Offline) Fetch(context.Context, string) (*progress.UserProgress, error) {
	return nil, ErrUnavailable
}

// Upsert implements Store.
func (Offline) Upsert(context.Context, string, Patch) error {
	return ErrUnavailable
}
