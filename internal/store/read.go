package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/growth/internal/date"
	"github.com/roach88/growth/internal/progress"
)

// Load returns the cached record for userID, or nil if there is none.
//
// Malformed records are logged as a warning and reported as absent; see the
// package documentation.
func (s *Store) Load(ctx context.Context, userID string) (*progress.UserProgress, error) {
	var record string
	err := s.db.QueryRowContext(ctx, `
		SELECT record FROM progress_cache WHERE user_id = ?
	`, userID).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	p, err := unmarshalRecord(userID, record)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("discarding malformed cached progress")
		return nil, nil
	}
	return &p, nil
}

// LedgerTotal returns the experience already granted to userID on day.
func (s *Store) LedgerTotal(ctx context.Context, userID string, day date.Date) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT amount FROM experience_ledger WHERE user_id = ? AND day = ?
	`, userID, day.String()).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger total: %w", err)
	}
	return total, nil
}

// Ledger returns every retained ledger entry for userID keyed by YYYY-MM-DD.
// Returns an empty map (not nil) when there are none.
func (s *Store) Ledger(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, amount FROM experience_ledger
		WHERE user_id = ?
		ORDER BY day ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var day string
		var amount int
		if err := rows.Scan(&day, &amount); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		out[day] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return out, nil
}

// TaskCreditedOn reports whether sourceID was credited to userID on day.
func (s *Store) TaskCreditedOn(ctx context.Context, userID, sourceID string, day date.Date) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM task_credits WHERE user_id = ? AND source_id = ? AND day = ?
	`, userID, sourceID, day.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("task credited: %w", err)
	}
	return true, nil
}
