package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/growth/internal/date"
	"github.com/roach88/growth/internal/engine"
	"github.com/roach88/growth/internal/level"
	"github.com/roach88/growth/internal/progress"
	"github.com/roach88/growth/internal/remote"
	"github.com/roach88/growth/internal/store"
	"github.com/roach88/growth/internal/testutil"
)

const testDay = "2026-10-14"

type cliHarness struct {
	t      *testing.T
	dir    string
	config string
	cache  string
	clock  *testutil.FixedClock
	remote *remote.Memory
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	dir := t.TempDir()
	h := &cliHarness{
		t:      t,
		dir:    dir,
		config: filepath.Join(dir, "growth.yaml"),
		cache:  filepath.Join(dir, "cache.db"),
		clock:  testutil.NewFixedClock(date.MustParse(testDay)),
		remote: remote.NewMemory(),
	}
	h.writeConfig("user_id: alice\n")
	return h
}

func (h *cliHarness) writeConfig(extra string) {
	h.t.Helper()
	content := "cache_path: " + h.cache + "\n" +
		"repeatable_sources: [water]\n" +
		"tables:\n  tiny: [0, 50]\n" +
		"logging:\n  level: error\n" +
		extra
	require.NoError(h.t, os.WriteFile(h.config, []byte(content), 0o600))
}

func (h *cliHarness) command(args ...string) (*bytes.Buffer, func() error) {
	opts := &RootOptions{
		Clock:  h.clock,
		Remote: h.remote,
		IDs:    engine.NewFixedGenerator("award-1"),
	}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", h.config}, args...))
	return out, cmd.Execute
}

func (h *cliHarness) run(args ...string) (string, error) {
	out, execute := h.command(args...)
	err := execute()
	return out.String(), err
}

func remoteRecord(userID string, xp, streak int, last string) progress.UserProgress {
	p := progress.Empty(userID)
	p.Experience = xp
	p.Level = level.Graduated.LevelFor(xp)
	p.StreakCount = streak
	p.LastActiveDate = date.MustParse(last)
	return p
}

type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func TestReconcile_EmptyCopies(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("--format", "json", "reconcile")
	require.NoError(t, err)

	resp := decode[ProgressView](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "alice", resp.Data.UserID)
	assert.Equal(t, 0, resp.Data.Experience)
	assert.Equal(t, 1, resp.Data.Level)
	assert.Equal(t, 100, resp.Data.ToNextLevel)
	assert.Equal(t, 1, resp.Data.Streak)
	assert.Equal(t, testDay, resp.Data.LastActiveDate)

	doc, ok := h.remote.Get("alice")
	require.True(t, ok, "reconcile should write the merged record remotely")
	assert.Equal(t, date.MustParse(testDay), doc.LastActiveDate)
}

func TestReconcile_TakesRemoteProgress(t *testing.T) {
	h := newCLIHarness(t)
	h.remote.Put(remoteRecord("alice", 500, 3, "2026-10-13"))

	out, err := h.run("reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "Experience: 500")
	assert.Contains(t, out, "Level:      4 (200 XP to next)")
	assert.Contains(t, out, "Streak:     4")
}

func TestReconcile_UserFlagOverridesConfig(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("--format", "json", "--user", "bob", "reconcile")
	require.NoError(t, err)
	assert.Equal(t, "bob", decode[ProgressView](t, out).Data.UserID)
}

func TestReconcile_NoUser(t *testing.T) {
	h := newCLIHarness(t)
	h.writeConfig("")

	out, err := h.run("--format", "json", "reconcile")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "error", decode[any](t, out).Status)
}

func TestReconcile_InvalidConfig(t *testing.T) {
	h := newCLIHarness(t)
	h.writeConfig("user_id: alice\ndaily_ceiling: 0\n")

	out, err := h.run("--format", "json", "reconcile")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decode[any](t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
	assert.NotNil(t, resp.Error.Details)
}

func TestGrant_CeilingFlow(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("--format", "json", "grant", "90")
	require.NoError(t, err)
	first := decode[GrantView](t, out)
	assert.Equal(t, 90, first.Data.Experience)
	assert.Equal(t, 10, first.Data.RemainingToday)
	assert.Equal(t, "award-1", first.Data.EventID)
	assert.False(t, first.Data.LeveledUp)

	out, err = h.run("--format", "json", "grant", "20")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	rejected := decode[any](t, out)
	require.NotNil(t, rejected.Error)
	assert.Equal(t, ErrCodeCeiling, rejected.Error.Code)
	assert.True(t, strings.HasPrefix(rejected.Error.Message, "award rejected: "), rejected.Error.Message)
	details, ok := rejected.Error.Details.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 10, details["remaining"])
	assert.EqualValues(t, 100, details["ceiling"])

	out, err = h.run("--format", "json", "grant", "10")
	require.NoError(t, err)
	last := decode[GrantView](t, out)
	assert.Equal(t, 100, last.Data.Experience)
	assert.Equal(t, 2, last.Data.Level)
	assert.True(t, last.Data.LeveledUp)
	assert.Equal(t, 0, last.Data.RemainingToday)

	doc, ok := h.remote.Get("alice")
	require.True(t, ok)
	assert.Equal(t, 100, doc.Experience)
	assert.Equal(t, 2, doc.Level)
}

func TestGrant_SourceOncePerDay(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("grant", "5", "--source", "exercise")
	require.NoError(t, err)

	out, err := h.run("grant", "5", "--source", "exercise")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeAlreadyCredited+"]: award rejected")

	// Repeatable sources may be credited again.
	for range 2 {
		_, err = h.run("grant", "5", "--source", "water")
		require.NoError(t, err)
	}

	// Tomorrow the limited source is available again.
	h.clock.Advance(1)
	out, err = h.run("--format", "json", "grant", "5", "--source", "exercise")
	require.NoError(t, err)
	assert.Equal(t, 2, decode[GrantView](t, out).Data.Streak)
}

func TestGrant_InvalidAmount(t *testing.T) {
	h := newCLIHarness(t)

	for _, amount := range []string{"-5", "ten", "1.5"} {
		t.Run(amount, func(t *testing.T) {
			out, err := h.run("--format", "json", "grant", "--", amount)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			resp := decode[any](t, out)
			require.NotNil(t, resp.Error)
			assert.Equal(t, ErrCodeUsage, resp.Error.Code)
			assert.NotContains(t, resp.Error.Message, "award rejected")
		})
	}
}

func TestGrant_ZeroIsSyncPass(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("grant", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced, nothing awarded")

	_, upserts := h.remote.Calls()
	assert.Equal(t, 2, upserts, "reconcile and the sync pass each write")
}

func TestGrant_OfflineStillAwards(t *testing.T) {
	h := newCLIHarness(t)
	h.remote.SetOffline(true)

	_, err := h.run("grant", "30")
	require.NoError(t, err)

	h.remote.SetOffline(false)
	out, err := h.run("--format", "json", "status")
	require.NoError(t, err)
	assert.Equal(t, 30, decode[StatusView](t, out).Data.Progress.Experience)

	doc, ok := h.remote.Get("alice")
	require.True(t, ok, "the next reconcile heals the remote copy")
	assert.Equal(t, 30, doc.Experience)
}

func TestStatus_Ledger(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("grant", "40")
	require.NoError(t, err)
	h.clock.Advance(1)
	_, err = h.run("grant", "15", "--source", "budget")
	require.NoError(t, err)

	out, err := h.run("--format", "json", "status")
	require.NoError(t, err)
	resp := decode[StatusView](t, out)
	assert.Equal(t, 55, resp.Data.Progress.Experience)
	assert.Equal(t, 1, resp.Data.Progress.TasksCompleted)
	assert.Equal(t, 100, resp.Data.Ceiling)
	assert.Equal(t, 85, resp.Data.RemainingToday)
	assert.Equal(t, []LedgerDay{
		{Day: "2026-10-14", Amount: 40},
		{Day: "2026-10-15", Amount: 15},
	}, resp.Data.Ledger)
}

func TestStatus_CachedDoesNotReconcile(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("status", "--cached")
	require.NoError(t, err)
	assert.Contains(t, out, "Streak:     0")
	assert.Contains(t, out, "local cache only")

	fetches, upserts := h.remote.Calls()
	assert.Zero(t, fetches)
	assert.Zero(t, upserts)
}

func TestPrune(t *testing.T) {
	h := newCLIHarness(t)

	st, err := store.Open(h.cache)
	require.NoError(t, err)
	ctx := context.Background()
	today := date.MustParse(testDay)
	_, err = st.RecordDailyExperience(ctx, "alice", today.Add(-10), 25)
	require.NoError(t, err)
	_, err = st.RecordDailyExperience(ctx, "alice", today, 5)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := h.run("--format", "json", "prune")
	require.NoError(t, err)
	resp := decode[PruneView](t, out)
	assert.Equal(t, "2026-10-07", resp.Data.Cutoff)
	assert.EqualValues(t, 1, resp.Data.Removed)

	out, err = h.run("prune", "--days", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 ledger row(s) dated before 2026-10-14")
}

func TestPrune_NegativeDays(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("prune", "--days", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLevels(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("levels", "--table", "flat", "--xp", "450")
	require.NoError(t, err)
	assert.Contains(t, out, "Table flat (available: flat, graduated, tiny)")
	assert.Contains(t, out, "level 20")
	assert.Contains(t, out, "450 XP is level 5, 50 XP to next")
}

func TestLevels_DefaultAndCustom(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run("--format", "json", "levels")
	require.NoError(t, err)
	resp := decode[LevelsView](t, out)
	assert.Equal(t, "graduated", resp.Data.Table)
	assert.Len(t, resp.Data.Levels, 15)
	assert.Equal(t, LevelEntry{Level: 15, Experience: 6000}, resp.Data.Levels[14])
	assert.Nil(t, resp.Data.ForXP)

	out, err = h.run("--format", "json", "levels", "--table", "TINY")
	require.NoError(t, err)
	assert.Equal(t, []LevelEntry{{1, 0}, {2, 50}}, decode[LevelsView](t, out).Data.Levels)
}

func TestLevels_UnknownTable(t *testing.T) {
	h := newCLIHarness(t)

	_, err := h.run("levels", "--table", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// syncBuffer lets the test read output while serve is still writing it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServe(t *testing.T) {
	h := newCLIHarness(t)
	out := &syncBuffer{}

	cmd := newRootCommand(&RootOptions{})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"--config", h.config,
		"serve",
		"--addr", "127.0.0.1:0",
		"--dsn", filepath.Join(h.dir, "docs.db"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Listening on ")
	}, 5*time.Second, 10*time.Millisecond)
	addr := strings.TrimSpace(strings.TrimPrefix(out.String(), "Listening on "))

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
