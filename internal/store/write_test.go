package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/growth/internal/date"
	"github.com/roach88/growth/internal/progress"
)

func TestSave_Overwrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, createTestProgress("u1", 10, 1, 1, "2026-10-13")))
	require.NoError(t, s.Save(ctx, createTestProgress("u1", 150, 2, 2, "2026-10-14")))

	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 150, got.Experience)
	assert.Equal(t, 2, got.StreakCount)
}

func TestSave_RequiresUserID(t *testing.T) {
	s := createTestStore(t)

	err := s.Save(context.Background(), progress.UserProgress{Level: 1})
	assert.Error(t, err)
}

func TestRecordDailyExperience_Accumulates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	today := date.MustParse("2026-10-14")

	total, err := s.RecordDailyExperience(ctx, "u1", today, 40)
	require.NoError(t, err)
	assert.Equal(t, 40, total)

	total, err = s.RecordDailyExperience(ctx, "u1", today, 0)
	require.NoError(t, err)
	assert.Equal(t, 40, total)

	total, err = s.RecordDailyExperience(ctx, "u1", today, 25)
	require.NoError(t, err)
	assert.Equal(t, 65, total)

	got, err := s.LedgerTotal(ctx, "u1", today)
	require.NoError(t, err)
	assert.Equal(t, 65, got)

	other, err := s.LedgerTotal(ctx, "u1", today.Add(-1))
	require.NoError(t, err)
	assert.Equal(t, 0, other)
}

func TestRecordDailyExperience_RejectsBadInput(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.RecordDailyExperience(ctx, "u1", date.MustParse("2026-10-14"), -1)
	assert.Error(t, err)

	_, err = s.RecordDailyExperience(ctx, "u1", date.Date{}, 5)
	assert.Error(t, err)
}

func TestCommitAward_WritesAllParts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	today := date.MustParse("2026-10-14")

	p := createTestProgress("u1", 30, 1, 1, "2026-10-14")
	p.TasksCompletedCount = 1
	p.PerTaskCompletionCounts = map[string]int{"exercise": 1}

	total, err := s.CommitAward(ctx, AwardWrite{Progress: p, Day: today, Amount: 30, CreditSource: "exercise"})
	require.NoError(t, err)
	assert.Equal(t, 30, total)

	loaded, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, p, *loaded)

	credited, err := s.TaskCreditedOn(ctx, "u1", "exercise", today)
	require.NoError(t, err)
	assert.True(t, credited)
}

func TestCommitAward_WithoutSource(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	today := date.MustParse("2026-10-14")

	_, err := s.CommitAward(ctx, AwardWrite{Progress: createTestProgress("u1", 5, 1, 1, "2026-10-14"), Day: today, Amount: 5})
	require.NoError(t, err)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM task_credits").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestCommitAward_RollsBackOnFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	today := date.MustParse("2026-10-14")

	// A record without a user id fails after the ledger row is written.
	_, err := s.CommitAward(ctx, AwardWrite{
		Progress:     progress.UserProgress{Experience: 10, Level: 1},
		Day:          today,
		Amount:       10,
		CreditSource: "exercise",
	})
	require.Error(t, err)

	total, err := s.LedgerTotal(ctx, "", today)
	require.NoError(t, err)
	assert.Equal(t, 0, total, "ledger add must roll back with the record")

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM task_credits").Scan(&n))
	assert.Equal(t, 0, n, "task credit must roll back with the record")
}

func TestPruneLedgerOlderThan(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	today := date.MustParse("2026-10-14")

	for _, back := range []int{0, 3, 7, 8, 30} {
		day := today.Add(-back)
		_, err := s.CommitAward(ctx, AwardWrite{
			Progress:     createTestProgress("u1", 1, 1, 1, day.String()),
			Day:          day,
			Amount:       1,
			CreditSource: "water",
		})
		require.NoError(t, err)
	}

	removed, err := s.PruneLedgerOlderThan(ctx, today, 7)
	require.NoError(t, err)
	// Days 8 and 30 back, from both tables.
	assert.Equal(t, int64(4), removed)

	ledger, err := s.Ledger(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"2026-10-07": 1,
		"2026-10-11": 1,
		"2026-10-14": 1,
	}, ledger)

	credited, err := s.TaskCreditedOn(ctx, "u1", "water", today.Add(-8))
	require.NoError(t, err)
	assert.False(t, credited)

	removed, err = s.PruneLedgerOlderThan(ctx, today, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestPruneLedgerOlderThan_RejectsNegativeRetention(t *testing.T) {
	s := createTestStore(t)

	_, err := s.PruneLedgerOlderThan(context.Background(), date.MustParse("2026-10-14"), -1)
	assert.Error(t, err)
}
