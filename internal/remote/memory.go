package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/growth/internal/progress"
)

// Memory is an in-process Store. It can be switched offline to simulate an
// unreachable backend.
type Memory struct {
	mu      sync.Mutex
	docs    map[string]Document
	offline bool
	now     func() time.Time

	fetches int
	upserts int
}

// NewMemory returns an empty, available Memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]Document),
		now:  time.Now,
	}
}

// SetOffline toggles availability. While offline every call returns
// ErrUnavailable.
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// Put stores p directly, bypassing patch semantics.
func (m *Memory) Put(p progress.UserProgress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[p.UserID] = Document{UserProgress: p.Clone(), UpdatedAt: m.now()}
}

// Get returns the stored document without counting as a fetch.
func (m *Memory) Get(userID string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[userID]
	if ok {
		doc.UserProgress = doc.UserProgress.Clone()
	}
	return doc, ok
}

// Calls returns how many Fetch and Upsert calls reached the store, including
// those rejected while offline.
func (m *Memory) Calls() (fetches, upserts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches, m.upserts
}

// Fetch implements Store.
func (m *Memory) Fetch(ctx context.Context, userID string) (*progress.UserProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.offline {
		return nil, fmt.Errorf("fetch %s: %w", userID, ErrUnavailable)
	}
	doc, ok := m.docs[userID]
	if !ok {
		return nil, nil
	}
	p := doc.UserProgress.Clone()
	return &p, nil
}

// Upsert implements Store.
func (m *Memory) Upsert(ctx context.Context, userID string, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.offline {
		return fmt.Errorf("upsert %s: %w", userID, ErrUnavailable)
	}
	base, ok := m.docs[userID]
	if !ok {
		base = Document{UserProgress: progress.Empty(userID)}
	}
	next := patch.Apply(base.UserProgress)
	next.UserID = userID
	m.docs[userID] = Document{UserProgress: next, UpdatedAt: m.now()}
	return nil
}
