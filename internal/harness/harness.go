package harness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/growth/internal/date"
	"github.com/roach88/growth/internal/engine"
	"github.com/roach88/growth/internal/level"
	"github.com/roach88/growth/internal/progress"
	"github.com/roach88/growth/internal/remote"
	"github.com/roach88/growth/internal/store"
	"github.com/roach88/growth/internal/testutil"
)

// Output cases recorded for each completion.
const (
	CaseSuccess              = "Success"
	CaseDailyCeilingExceeded = "DailyCeilingExceeded"
	CaseAlreadyCreditedToday = "AlreadyCreditedToday"
	CaseNotReconciled        = "NotReconciled"
	CaseSessionMismatch      = "SessionMismatch"
	CaseInvalidAmount        = "InvalidAmount"
)

// eventBuffer comfortably exceeds the events one step can publish.
const eventBuffer = 64

// Harness is the test execution engine.
// It runs scenarios with a fixed clock and fixed award ids.
type Harness struct {
	store  *store.Store
	remote *remote.Memory
	engine *engine.Engine
	clock  *testutil.FixedClock
	events <-chan engine.Event
	user   string
	seq    int64
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory cache for isolation.
//
// Execution flow:
// 1. Create fresh in-memory cache and remote
// 2. Seed the local and remote copies
// 3. Execute flow steps with expect validation
// 4. Capture the final local, remote and session copies
// 5. Evaluate assertions and return result with pass/fail, trace, and errors
func Run(scenario *Scenario) (*Result, error) {
	today, err := date.Parse(scenario.Today)
	if err != nil {
		return nil, fmt.Errorf("today: %w", err)
	}
	table := level.Graduated
	if scenario.Config.LevelTable != "" {
		t, ok := level.NewRegistry().Lookup(scenario.Config.LevelTable)
		if !ok {
			return nil, fmt.Errorf("unknown level table %q", scenario.Config.LevelTable)
		}
		table = t
	}

	// Create fresh in-memory SQLite database
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	rs := remote.NewMemory()

	if scenario.Local != nil {
		if err := st.Save(ctx, scenario.Local.progress(scenario.User, table)); err != nil {
			return nil, fmt.Errorf("failed to seed local copy: %w", err)
		}
	}
	if scenario.Remote != nil {
		rs.Put(scenario.Remote.progress(scenario.User, table))
	}

	clock := testutil.NewFixedClock(today)
	opts := []engine.EngineOption{
		engine.WithClock(clock),
		engine.WithIDGenerator(engine.NewFixedGenerator(scenario.EventIDs...)),
		engine.WithLevelTable(table),
		engine.WithRepeatableSources(scenario.Config.RepeatableSources...),
	}
	if scenario.Config.DailyCeiling > 0 {
		opts = append(opts, engine.WithDailyCeiling(scenario.Config.DailyCeiling))
	}
	if scenario.Config.RetentionDays > 0 {
		opts = append(opts, engine.WithRetentionDays(scenario.Config.RetentionDays))
	}
	eng := engine.New(st, rs, opts...)

	events, cancel := eng.Subscribe(eventBuffer)
	defer cancel()

	h := &Harness{
		store:  st,
		remote: rs,
		engine: eng,
		clock:  clock,
		events: events,
		user:   scenario.User,
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	if err := h.captureState(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to capture state: %w", err)
	}

	// Evaluate assertions against the result
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// next returns the next trace sequence number.
func (h *Harness) next() int64 {
	h.seq++
	return h.seq
}

// executeFlow runs all flow steps and validates expect clauses.
//
// Each step:
// 1. Records the invocation
// 2. Calls the engine (or moves the clock, or toggles the remote)
// 3. Records the completion derived from the engine's answer
// 4. Records every event the engine published during the call
// 5. Validates the expect clause against the completion
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		result.AddInvocationTrace(step.Action, h.stepArgs(step), h.next())

		outputCase, out, err := h.execute(ctx, step)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Action, err)
		}
		result.AddCompletionTrace(outputCase, out, h.next())
		h.drainEvents(result)

		if step.Expect == nil {
			continue
		}
		if outputCase != step.Expect.Case {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected case %q, got %q (result %v)",
				i, step.Action, step.Expect.Case, outputCase, out))
			continue
		}
		for _, key := range sortedKeys(step.Expect.Result) {
			want := step.Expect.Result[key]
			got, ok := out[key]
			if !ok || !valuesEqual(got, want) {
				result.AddError(fmt.Sprintf("flow[%d] %s: result field %q = %v, want %v", i, step.Action, key, got, want))
			}
		}
	}
	return nil
}

func (h *Harness) stepUser(step FlowStep) string {
	if step.User != "" {
		return step.User
	}
	return h.user
}

func (h *Harness) stepArgs(step FlowStep) map[string]interface{} {
	switch step.Action {
	case ActionReconcile:
		return map[string]interface{}{"user": h.stepUser(step)}
	case ActionGrant:
		args := map[string]interface{}{"user": h.stepUser(step), "amount": step.Amount}
		if step.Source != "" {
			args["source"] = step.Source
		}
		return args
	case ActionAdvance:
		return map[string]interface{}{"days": step.Days}
	default:
		return nil
	}
}

// execute performs one step and maps the engine's answer to an output case.
// Errors that are not an award outcome abort the run.
func (h *Harness) execute(ctx context.Context, step FlowStep) (string, map[string]interface{}, error) {
	switch step.Action {
	case ActionReconcile:
		p, err := h.engine.Reconcile(ctx, h.stepUser(step))
		if err != nil {
			return "", nil, err
		}
		return CaseSuccess, progressFields(p), nil

	case ActionGrant:
		res, err := h.engine.Grant(ctx, h.stepUser(step), step.Amount, step.Source)
		if err != nil {
			return grantFailure(err)
		}
		out := map[string]interface{}{
			"awarded":         res.Awarded,
			"experience":      res.NewExperience,
			"level":           res.NewLevel,
			"leveled_up":      res.LeveledUp,
			"streak":          res.NewStreak,
			"remaining_today": res.RemainingToday,
		}
		if res.EventID != "" {
			out["event_id"] = res.EventID
		}
		return CaseSuccess, out, nil

	case ActionAdvance:
		return CaseSuccess, map[string]interface{}{"today": h.clock.Advance(step.Days).String()}, nil

	case ActionOffline:
		h.remote.SetOffline(true)
		return CaseSuccess, nil, nil

	case ActionOnline:
		h.remote.SetOffline(false)
		return CaseSuccess, nil, nil
	}
	return "", nil, fmt.Errorf("unknown action %q", step.Action)
}

func grantFailure(err error) (string, map[string]interface{}, error) {
	var ceiling *engine.DailyCeilingExceededError
	var credited *engine.AlreadyCreditedTodayError

	switch {
	case errors.As(err, &ceiling):
		return CaseDailyCeilingExceeded, map[string]interface{}{
			"ceiling":   ceiling.Ceiling,
			"requested": ceiling.Requested,
			"remaining": ceiling.Remaining,
		}, nil
	case errors.As(err, &credited):
		return CaseAlreadyCreditedToday, map[string]interface{}{
			"source": credited.SourceID,
			"day":    credited.Day.String(),
		}, nil
	case errors.Is(err, engine.ErrNotReconciled):
		return CaseNotReconciled, nil, nil
	case errors.Is(err, engine.ErrSessionMismatch):
		return CaseSessionMismatch, nil, nil
	case errors.Is(err, engine.ErrInvalidAmount):
		return CaseInvalidAmount, nil, nil
	}
	return "", nil, err
}

// drainEvents moves every event already published into the trace. Events
// are published before Reconcile and Grant return, so none are missed.
func (h *Harness) drainEvents(result *Result) {
	for {
		select {
		case ev := <-h.events:
			payload := map[string]interface{}{
				"day":        ev.Day.String(),
				"experience": ev.Experience,
				"level":      ev.Level,
				"streak":     ev.Streak,
			}
			if ev.Amount != 0 {
				payload["amount"] = ev.Amount
			}
			if ev.EventID != "" {
				payload["event_id"] = ev.EventID
			}
			result.AddEventTrace(string(ev.Type), payload, h.next())
		default:
			return
		}
	}
}

// captureState stores the final copies of the scenario user in result.State.
func (h *Harness) captureState(ctx context.Context, result *Result) error {
	local, err := h.store.Load(ctx, h.user)
	if err != nil {
		return err
	}
	if local != nil {
		result.State[CopyLocal] = progressFields(*local)
	}
	if doc, ok := h.remote.Get(h.user); ok {
		result.State[CopyRemote] = progressFields(doc.UserProgress)
	}
	if snap, ok := h.engine.Snapshot(); ok {
		result.State[CopySession] = progressFields(snap)
	}
	return nil
}

// progressFields flattens a record into the layout used by completions and
// final_state assertions.
func progressFields(p progress.UserProgress) map[string]interface{} {
	out := map[string]interface{}{
		"experience":      p.Experience,
		"level":           p.Level,
		"streak":          p.StreakCount,
		"tasks_completed": p.TasksCompletedCount,
	}
	if !p.LastActiveDate.IsZero() {
		out["last_active"] = p.LastActiveDate.String()
	}
	if len(p.PerTaskCompletionCounts) > 0 {
		perTask := make(map[string]interface{}, len(p.PerTaskCompletionCounts))
		for id, n := range p.PerTaskCompletionCounts {
			perTask[id] = n
		}
		out["per_task"] = perTask
	}
	return out
}

// progress converts a seed record for userID.
func (r *Record) progress(userID string, table level.Table) progress.UserProgress {
	p := progress.Empty(userID)
	p.Experience = r.Experience
	p.Level = r.Level
	if p.Level == 0 {
		p.Level = table.LevelFor(r.Experience)
	}
	p.StreakCount = r.Streak
	p.TasksCompletedCount = r.TasksCompleted
	if r.LastActive != "" {
		p.LastActiveDate = date.MustParse(r.LastActive)
	}
	if len(r.PerTask) > 0 {
		p.PerTaskCompletionCounts = maps.Clone(r.PerTask)
	}
	return p
}

func sortedKeys(m map[string]interface{}) []string {
	return slices.Sorted(maps.Keys(m))
}
