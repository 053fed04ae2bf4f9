package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/growth/internal/date"
	"github.com/roach88/growth/internal/level"
	"github.com/roach88/growth/internal/progress"
	"github.com/roach88/growth/internal/remote"
	"github.com/roach88/growth/internal/store"
)

const (
	// DefaultRetentionDays is how long ledger entries are kept.
	DefaultRetentionDays = 7

	// DefaultRemoteTimeout bounds each remote write.
	DefaultRemoteTimeout = 5 * time.Second
)

// LocalStore is the on-device cache the engine persists to.
// Implemented by *store.Store.
type LocalStore interface {
	Load(ctx context.Context, userID string) (*progress.UserProgress, error)
	Save(ctx context.Context, p progress.UserProgress) error
	LedgerTotal(ctx context.Context, userID string, day date.Date) (int, error)
	TaskCreditedOn(ctx context.Context, userID, sourceID string, day date.Date) (bool, error)
	CommitAward(ctx context.Context, w store.AwardWrite) (int, error)
	PruneLedgerOlderThan(ctx context.Context, today date.Date, days int) (int64, error)
}

var _ LocalStore = (*store.Store)(nil)

// Engine reconciles and mutates one user's progress.
//
// Thread-safety model:
//   - Reconcile(), Grant(): safe from any goroutine, serialized by mu
//   - Snapshot(), Subscribe(): safe from any goroutine
type Engine struct {
	mu sync.Mutex

	local   LocalStore
	remote  remote.Store
	clock   Clock
	ids     IDGenerator
	log     zerolog.Logger
	ceiling *CeilingEnforcer
	table   level.Table

	retentionDays int
	remoteTimeout time.Duration
	repeatable    map[string]bool

	session *progress.UserProgress
	// remoteSeen is true once the session has read the remote copy. Until
	// then nothing is written to the remote.
	remoteSeen bool
	events     *broadcaster
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// WithClock replaces the wall clock, typically with a fixed test clock.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator replaces the award event id generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithDailyCeiling sets the per-day experience limit.
//
// Default: 100 (DefaultDailyCeiling)
func WithDailyCeiling(ceiling int) EngineOption {
	return func(e *Engine) {
		e.ceiling = NewCeilingEnforcer(ceiling)
	}
}

// WithLevelTable sets the table the stored level is derived from.
//
// Default: level.Graduated
func WithLevelTable(t level.Table) EngineOption {
	return func(e *Engine) {
		e.table = t
	}
}

// WithRetentionDays sets how many days of ledger history survive pruning.
func WithRetentionDays(days int) EngineOption {
	return func(e *Engine) {
		e.retentionDays = days
	}
}

// WithRemoteTimeout bounds each remote write.
func WithRemoteTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.remoteTimeout = d
		}
	}
}

// WithRepeatableSources lists source ids that may be credited more than once
// per day. Every other non-empty source is limited to one credit per day.
func WithRepeatableSources(ids ...string) EngineOption {
	return func(e *Engine) {
		for _, id := range ids {
			if id = normalizeSource(id); id != "" {
				e.repeatable[id] = true
			}
		}
	}
}

// New creates an Engine over a local cache and a remote store.
//
// Options can be passed to configure the engine (e.g., WithDailyCeiling).
func New(local LocalStore, rs remote.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		local:         local,
		remote:        rs,
		clock:         SystemClock{},
		ids:           UUIDv7Generator{},
		log:           zerolog.Nop(),
		ceiling:       NewCeilingEnforcer(DefaultDailyCeiling),
		table:         level.Graduated,
		retentionDays: DefaultRetentionDays,
		remoteTimeout: DefaultRemoteTimeout,
		repeatable:    make(map[string]bool),
	}

	// Apply options
	for _, opt := range opts {
		opt(e)
	}

	e.events = newBroadcaster(e.log)
	return e
}

// Snapshot returns a copy of the in-memory session record. The bool is
// false until the first successful Reconcile.
func (e *Engine) Snapshot() (progress.UserProgress, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return progress.UserProgress{}, false
	}
	return e.session.Clone(), true
}

// Subscribe returns a channel of engine events and a cancel func that
// closes it. A subscriber that falls more than buffer events behind misses
// events rather than blocking the engine.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	return e.events.subscribe(buffer)
}

// Table returns the level table the engine derives levels from.
func (e *Engine) Table() level.Table {
	return e.table
}

// Ceiling returns the per-day experience limit.
func (e *Engine) Ceiling() int {
	return e.ceiling.Ceiling()
}

// Remaining returns how much of the ceiling is left after total.
func (e *Engine) Remaining(total int) int {
	return e.ceiling.Remaining(total)
}

// Today returns the engine clock's current date.
func (e *Engine) Today() date.Date {
	return e.clock.Today()
}

// RetentionDays returns how many days of ledger history are kept.
func (e *Engine) RetentionDays() int {
	return e.retentionDays
}

// pushRemote writes the full record to the remote store, bounded by the
// remote timeout. Failures are logged; the next call resends current values.
// Nothing is written while the session has not read the remote copy, since
// the full record would overwrite progress it never saw.
// Caller holds e.mu.
func (e *Engine) pushRemote(ctx context.Context, p progress.UserProgress) {
	if !e.remoteSeen {
		e.log.Debug().Str("user_id", p.UserID).Msg("remote not read this session, write deferred")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.remoteTimeout)
	defer cancel()

	if err := e.remote.Upsert(ctx, p.UserID, remote.FullPatch(p)); err != nil {
		ev := e.log.Warn()
		if errors.Is(err, remote.ErrUnavailable) {
			ev = e.log.Info()
		}
		ev.Err(err).Str("user_id", p.UserID).Msg("remote write failed, will resend on next call")
	}
}

func (e *Engine) publish(typ EventType, p progress.UserProgress, day date.Date, amount int, eventID string) {
	e.events.publish(Event{
		Type:       typ,
		UserID:     p.UserID,
		Day:        day,
		Amount:     amount,
		Experience: p.Experience,
		Level:      p.Level,
		Streak:     p.StreakCount,
		EventID:    eventID,
	})
}

func (e *Engine) publishStreak(outcome streakOutcome, baseline int, p progress.UserProgress, day date.Date) {
	switch {
	case outcome == streakExtended:
		e.publish(EventStreakExtended, p, day, 0, "")
	case outcome == streakReset && baseline > 1:
		e.publish(EventStreakReset, p, day, 0, "")
	}
}
