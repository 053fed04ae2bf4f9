package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/growth/internal/progress"
	"github.com/roach88/growth/internal/store"
)

// Grant awards amount experience to the reconciled session user, optionally
// attributed to sourceID.
//
// Order of checks, each of which leaves all state untouched on failure:
//  1. the session must be reconciled for userID and amount must be >= 0
//  2. a per-day-limited source must not already be credited today
//  3. today's ledger total plus amount must not exceed the ceiling
//
// An amount of 0 is a sync pass: the current record is re-sent to the remote
// and returned unchanged.
//
// The accepted award is committed locally in one transaction before the
// remote write, whose failure is logged and never returned. A session that
// has not read the remote copy reads it first and merges it in; if it still
// cannot, the remote write is skipped.
func (e *Engine) Grant(ctx context.Context, userID string, amount int, sourceID string) (progress.AwardResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return progress.AwardResult{}, ErrNotReconciled
	}
	if e.session.UserID != userID {
		return progress.AwardResult{}, fmt.Errorf("%w: session is %q, got %q", ErrSessionMismatch, e.session.UserID, userID)
	}
	if amount < 0 {
		return progress.AwardResult{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	today := e.clock.Today()

	if amount == 0 {
		if err := e.resyncRemote(ctx, today); err != nil {
			return progress.AwardResult{}, fmt.Errorf("grant: %w", err)
		}
		cur := e.session.Clone()
		total, err := e.local.LedgerTotal(ctx, userID, today)
		if err != nil {
			return progress.AwardResult{}, fmt.Errorf("grant: %w", err)
		}
		e.pushRemote(ctx, cur)
		return progress.AwardResult{
			Day:            today,
			NewExperience:  cur.Experience,
			NewLevel:       cur.Level,
			NewStreak:      cur.StreakCount,
			RemainingToday: e.ceiling.Remaining(total),
		}, nil
	}

	src := normalizeSource(sourceID)
	limited := src != "" && !e.repeatable[src]
	if limited {
		credited, err := e.local.TaskCreditedOn(ctx, userID, src, today)
		if err != nil {
			return progress.AwardResult{}, fmt.Errorf("grant: %w", err)
		}
		if credited {
			e.log.Info().Str("user_id", userID).Str("source", src).Str("day", today.String()).Msg("award rejected: already credited today")
			return progress.AwardResult{}, &AlreadyCreditedTodayError{UserID: userID, SourceID: src, Day: today}
		}
	}

	total, err := e.local.LedgerTotal(ctx, userID, today)
	if err != nil {
		return progress.AwardResult{}, fmt.Errorf("grant: %w", err)
	}
	if err := e.ceiling.Check(userID, today, total, amount); err != nil {
		e.log.Info().Str("user_id", userID).Int("amount", amount).Int("total", total).Str("day", today.String()).Msg("award rejected: daily ceiling")
		return progress.AwardResult{}, err
	}

	if err := e.resyncRemote(ctx, today); err != nil {
		return progress.AwardResult{}, fmt.Errorf("grant: %w", err)
	}
	cur := e.session.Clone()

	next := cur.Clone()
	next.Experience += amount
	next.Level = e.table.LevelFor(next.Experience)
	leveledUp := next.Level > cur.Level

	if src != "" {
		if next.PerTaskCompletionCounts == nil {
			next.PerTaskCompletionCounts = make(map[string]int)
		}
		next.PerTaskCompletionCounts[src]++
		next.TasksCompletedCount++
	}

	outcome := streakKept
	if next.LastActiveDate != today {
		next.StreakCount, outcome = nextStreak(cur.StreakCount, cur.LastActiveDate, today)
		next.LastActiveDate = today
	}

	write := store.AwardWrite{Progress: next, Day: today, Amount: amount}
	if limited {
		write.CreditSource = src
	}
	newTotal, err := e.local.CommitAward(ctx, write)
	if err != nil {
		return progress.AwardResult{}, fmt.Errorf("grant: %w", err)
	}

	session := next.Clone()
	e.session = &session
	e.pushRemote(ctx, next)

	res := progress.AwardResult{
		EventID:        e.ids.Generate(),
		Day:            today,
		Awarded:        amount,
		NewExperience:  next.Experience,
		NewLevel:       next.Level,
		LeveledUp:      leveledUp,
		NewStreak:      next.StreakCount,
		RemainingToday: e.ceiling.Remaining(newTotal),
	}

	e.log.Info().
		Str("user_id", userID).
		Int("amount", amount).
		Str("source", src).
		Int("experience", next.Experience).
		Int("level", next.Level).
		Bool("leveled_up", leveledUp).
		Msg("awarded")

	e.publish(EventAwarded, next, today, amount, res.EventID)
	if leveledUp {
		e.publish(EventLevelUp, next, today, amount, res.EventID)
	}
	e.publishStreak(outcome, cur.StreakCount, next, today)
	return res, nil
}

// normalizeSource canonicalizes a source id so visually identical ids share
// one per-day credit.
func normalizeSource(id string) string {
	return strings.TrimSpace(norm.NFC.String(id))
}
