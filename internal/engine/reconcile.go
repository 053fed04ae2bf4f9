package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/roach88/growth/internal/date"
	"github.com/roach88/growth/internal/level"
	"github.com/roach88/growth/internal/progress"
)

// Reconcile merges the remote and local copies of userID's record, persists
// the result to both and installs it as the session record.
//
// A remote that cannot be reached is treated as absent; a local copy that is
// missing or malformed falls back to defaults. Only a local write failure or
// cancellation of ctx is returned as an error.
func (e *Engine) Reconcile(ctx context.Context, userID string) (progress.UserProgress, error) {
	if userID == "" {
		return progress.UserProgress{}, errors.New("reconcile: missing user id")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	today := e.clock.Today()

	remoteCopy, err := e.remote.Fetch(ctx, userID)
	fetched := err == nil
	if err != nil {
		if ctx.Err() != nil {
			return progress.UserProgress{}, fmt.Errorf("reconcile: %w", ctx.Err())
		}
		e.log.Info().Err(err).Str("user_id", userID).Msg("remote fetch failed, reconciling from local cache")
		remoteCopy = nil
	}

	localCopy, err := e.local.Load(ctx, userID)
	if err != nil {
		return progress.UserProgress{}, fmt.Errorf("reconcile: %w", err)
	}

	merged, outcome, baseline := mergeProgress(userID, remoteCopy, localCopy, today, e.table)

	if err := e.local.Save(ctx, merged); err != nil {
		return progress.UserProgress{}, fmt.Errorf("reconcile: %w", err)
	}
	e.remoteSeen = fetched
	e.pushRemote(ctx, merged)

	if removed, err := e.local.PruneLedgerOlderThan(ctx, today, e.retentionDays); err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("ledger prune failed")
	} else if removed > 0 {
		e.log.Debug().Int64("rows", removed).Str("user_id", userID).Msg("ledger pruned")
	}

	session := merged.Clone()
	e.session = &session

	e.log.Info().
		Str("user_id", userID).
		Int("experience", merged.Experience).
		Int("level", merged.Level).
		Int("streak", merged.StreakCount).
		Bool("had_remote", remoteCopy != nil).
		Bool("remote_read", fetched).
		Bool("had_local", localCopy != nil).
		Msg("reconciled")

	e.publish(EventReconciled, merged, today, 0, "")
	e.publishStreak(outcome, baseline, merged, today)
	return merged.Clone(), nil
}

// mergeProgress combines the two copies. Either may be nil. Counters take
// the larger value and are never summed. It also returns the streak outcome
// and the baseline it was computed from.
func mergeProgress(userID string, remoteCopy, localCopy *progress.UserProgress, today date.Date, table level.Table) (progress.UserProgress, streakOutcome, int) {
	r := progress.Empty(userID)
	if remoteCopy != nil {
		r = remoteCopy.Clone()
	}
	l := progress.Empty(userID)
	if localCopy != nil {
		l = localCopy.Clone()
	}

	out := maxCounters(userID, r, l, table)

	baseline := max(r.StreakCount, l.StreakCount)
	last := pickLastActive(r.LastActiveDate, l.LastActiveDate, today)
	streak, outcome := nextStreak(baseline, last, today)
	out.StreakCount = streak
	out.LastActiveDate = today

	return out, outcome, baseline
}

// maxCounters takes the larger of each counter of a and b and derives the
// level from the result. Streak fields are left zero.
func maxCounters(userID string, a, b progress.UserProgress, table level.Table) progress.UserProgress {
	out := progress.UserProgress{
		UserID:              userID,
		Experience:          max(a.Experience, b.Experience),
		TasksCompletedCount: max(a.TasksCompletedCount, b.TasksCompletedCount),
	}
	out.Level = table.LevelFor(out.Experience)

	if len(a.PerTaskCompletionCounts) > 0 || len(b.PerTaskCompletionCounts) > 0 {
		out.PerTaskCompletionCounts = maps.Clone(a.PerTaskCompletionCounts)
		if out.PerTaskCompletionCounts == nil {
			out.PerTaskCompletionCounts = make(map[string]int)
		}
		for id, n := range b.PerTaskCompletionCounts {
			out.PerTaskCompletionCounts[id] = max(out.PerTaskCompletionCounts[id], n)
		}
	}
	return out
}

// resyncRemote reads the remote copy for a session that has not seen it yet
// and folds it into the session record, so the next remote write carries
// both. A remote that still cannot be read leaves the session untouched and
// remote writes deferred. Caller holds e.mu.
func (e *Engine) resyncRemote(ctx context.Context, today date.Date) error {
	if e.remoteSeen {
		return nil
	}
	userID := e.session.UserID

	remoteCopy, err := e.remote.Fetch(ctx, userID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.log.Info().Err(err).Str("user_id", userID).Msg("remote fetch failed, remote write deferred")
		return nil
	}
	if remoteCopy == nil {
		e.remoteSeen = true
		return nil
	}

	merged := mergeSession(*e.session, *remoteCopy, today, e.table)
	if err := e.local.Save(ctx, merged); err != nil {
		return err
	}
	e.session = &merged
	e.remoteSeen = true

	e.log.Info().
		Str("user_id", userID).
		Int("experience", merged.Experience).
		Int("streak", merged.StreakCount).
		Msg("remote copy merged into session")
	return nil
}

// mergeSession folds a late-read remote copy into the session record.
// Counters take the max. The streak of the copy active earlier is carried
// forward to the later copy's day and the larger streak is kept. A remote
// date after today is ignored.
func mergeSession(session, remoteCopy progress.UserProgress, today date.Date, table level.Table) progress.UserProgress {
	out := maxCounters(session.UserID, session, remoteCopy, table)
	out.StreakCount = session.StreakCount
	out.LastActiveDate = session.LastActiveDate

	rLast, sLast := remoteCopy.LastActiveDate, session.LastActiveDate
	switch {
	case rLast.IsZero(), rLast.After(today):
	case rLast == sLast:
		out.StreakCount = max(session.StreakCount, remoteCopy.StreakCount)
	case rLast.Before(sLast):
		carried, _ := nextStreak(remoteCopy.StreakCount, rLast, sLast)
		out.StreakCount = max(session.StreakCount, carried)
	default:
		carried, _ := nextStreak(session.StreakCount, sLast, rLast)
		out.StreakCount = max(remoteCopy.StreakCount, carried)
		out.LastActiveDate = rLast
	}
	return out
}
