package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/growth/internal/date"
	"github.com/roach88/growth/internal/progress"
)

// Save overwrites the cached record for p.UserID. Last writer wins.
func (s *Store) Save(ctx context.Context, p progress.UserProgress) error {
	if err := saveRecord(ctx, s.db, p); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func saveRecord(ctx context.Context, x execer, p progress.UserProgress) error {
	if p.UserID == "" {
		return fmt.Errorf("missing user id")
	}
	record, err := marshalRecord(p)
	if err != nil {
		return err
	}
	_, err = x.ExecContext(ctx, `
		INSERT INTO progress_cache (user_id, record, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			record = excluded.record,
			saved_at = excluded.saved_at
	`, p.UserID, record, time.Now().UnixMilli())
	return err
}

// RecordDailyExperience adds amount to the ledger entry for day, creating it
// at 0 if absent, and returns the resulting total.
func (s *Store) RecordDailyExperience(ctx context.Context, userID string, day date.Date, amount int) (int, error) {
	total, err := addLedger(ctx, s.db, userID, day, amount)
	if err != nil {
		return 0, fmt.Errorf("record daily experience: %w", err)
	}
	return total, nil
}

func addLedger(ctx context.Context, x execer, userID string, day date.Date, amount int) (int, error) {
	if day.IsZero() {
		return 0, fmt.Errorf("missing day")
	}
	if amount < 0 {
		return 0, fmt.Errorf("negative amount %d", amount)
	}
	var total int
	err := x.QueryRowContext(ctx, `
		INSERT INTO experience_ledger (user_id, day, amount)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET amount = amount + excluded.amount
		RETURNING amount
	`, userID, day.String(), amount).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// AwardWrite is everything a single accepted grant persists locally.
type AwardWrite struct {
	Progress progress.UserProgress
	Day      date.Date
	Amount   int
	// CreditSource, when non-empty, records a per-day task credit for Day.
	CreditSource string
}

// CommitAward applies an accepted grant in one transaction: the ledger add,
// the optional task credit and the record overwrite. It returns the new
// ledger total for the day.
func (s *Store) CommitAward(ctx context.Context, w AwardWrite) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("commit award: begin: %w", err)
	}
	defer tx.Rollback()

	userID := w.Progress.UserID
	total, err := addLedger(ctx, tx, userID, w.Day, w.Amount)
	if err != nil {
		return 0, fmt.Errorf("commit award: ledger: %w", err)
	}

	if w.CreditSource != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_credits (user_id, source_id, day)
			VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`, userID, w.CreditSource, w.Day.String()); err != nil {
			return 0, fmt.Errorf("commit award: credit: %w", err)
		}
	}

	if err := saveRecord(ctx, tx, w.Progress); err != nil {
		return 0, fmt.Errorf("commit award: record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit award: %w", err)
	}
	return total, nil
}

// PruneLedgerOlderThan removes ledger entries and task credits dated before
// today-days, for every user. It returns the number of rows removed.
func (s *Store) PruneLedgerOlderThan(ctx context.Context, today date.Date, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("prune ledger: negative retention %d", days)
	}
	cutoff := today.Add(-days).String()

	var removed int64
	for _, table := range []string{"experience_ledger", "task_credits"} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE day < ?", cutoff)
		if err != nil {
			return removed, fmt.Errorf("prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("prune %s: %w", table, err)
		}
		removed += n
	}

	if removed > 0 {
		s.log.Debug().Str("cutoff", cutoff).Int64("rows", removed).Msg("ledger pruned")
	}
	return removed, nil
}
