package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return scenario
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := mustParse(t, `
name: minimal
user: alice
today: "2026-10-14"
flow:
  - action: reconcile
    expect:
      case: Success
      result:
        experience: 0
        level: 1
        streak: 1
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, KindInvocation, result.Trace[0].Type)
	assert.Equal(t, "reconcile", result.Trace[0].Action)
	assert.Equal(t, map[string]interface{}{"user": "alice"}, result.Trace[0].Args)
	assert.Equal(t, KindCompletion, result.Trace[1].Type)
	assert.Equal(t, CaseSuccess, result.Trace[1].OutputCase)
	assert.Equal(t, KindEvent, result.Trace[2].Type)
	assert.Equal(t, "reconciled", result.Trace[2].Event)

	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}

	for _, copyName := range []string{CopyLocal, CopyRemote, CopySession} {
		got, ok := result.State[copyName].(map[string]interface{})
		require.True(t, ok, copyName)
		assert.Equal(t, "2026-10-14", got["last_active"], copyName)
		assert.Equal(t, 1, got["streak"], copyName)
	}
}

func TestRun_MergeTakesMaximum(t *testing.T) {
	scenario := mustParse(t, `
name: merge
user: alice
today: "2026-10-14"
remote:
  experience: 500
  streak: 3
  last_active: "2026-10-13"
  tasks_completed: 4
  per_task:
    run: 4
local:
  experience: 300
  streak: 5
  last_active: "2026-10-14"
  tasks_completed: 2
  per_task:
    run: 1
    read: 1
flow:
  - action: reconcile
    expect:
      case: Success
      result:
        experience: 500
        level: 4
        streak: 5
        tasks_completed: 4
        per_task:
          run: 4
          read: 1
assertions:
  - type: final_state
    copy: remote
    expect:
      experience: 500
      last_active: "2026-10-14"
  - type: trace_count
    event: streak_extended
    count: 0
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_CeilingThenLevelUp(t *testing.T) {
	scenario := mustParse(t, `
name: ceiling
user: alice
today: "2026-10-14"
flow:
  - action: reconcile
  - action: grant
    amount: 90
    expect:
      case: Success
      result:
        experience: 90
        level: 1
        remaining_today: 10
        event_id: award-1
  - action: grant
    amount: 20
    expect:
      case: DailyCeilingExceeded
      result:
        ceiling: 100
        requested: 20
        remaining: 10
  - action: grant
    amount: 10
    expect:
      case: Success
      result:
        experience: 100
        level: 2
        leveled_up: true
        remaining_today: 0
        event_id: award-2
assertions:
  - type: trace_count
    event: awarded
    count: 2
  - type: trace_contains
    event: level_up
    args:
      level: 2
      event_id: award-2
  - type: final_state
    copy: local
    expect:
      experience: 100
      level: 2
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_OncePerDaySource(t *testing.T) {
	scenario := mustParse(t, `
name: once_per_day
user: alice
today: "2026-10-14"
config:
  repeatable_sources: [water]
flow:
  - action: reconcile
  - action: grant
    amount: 10
    source: run
    expect:
      case: Success
  - action: grant
    amount: 10
    source: run
    expect:
      case: AlreadyCreditedToday
      result:
        source: run
        day: "2026-10-14"
  - action: grant
    amount: 5
    source: water
    expect:
      case: Success
  - action: grant
    amount: 5
    source: water
    expect:
      case: Success
  - action: advance
    days: 1
    expect:
      case: Success
      result:
        today: "2026-10-15"
  - action: grant
    amount: 10
    source: run
    expect:
      case: Success
      result:
        experience: 30
        streak: 2
assertions:
  - type: final_state
    copy: session
    expect:
      tasks_completed: 4
      per_task:
        run: 2
        water: 2
  - type: trace_contains
    event: streak_extended
    args:
      day: "2026-10-15"
      streak: 2
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_StreakReset(t *testing.T) {
	scenario := mustParse(t, `
name: reset
user: alice
today: "2026-10-14"
local:
  experience: 40
  streak: 6
  last_active: "2026-10-11"
flow:
  - action: reconcile
    expect:
      case: Success
      result:
        streak: 1
assertions:
  - type: trace_order
    events: [reconciled, streak_reset]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_OfflineGrantHealsOnSync(t *testing.T) {
	scenario := mustParse(t, `
name: offline
user: alice
today: "2026-10-14"
flow:
  - action: reconcile
  - action: offline
  - action: grant
    amount: 30
    expect:
      case: Success
      result:
        experience: 30
  - action: online
  - action: grant
    amount: 0
    expect:
      case: Success
      result:
        awarded: 0
        experience: 30
        remaining_today: 70
assertions:
  - type: final_state
    copy: remote
    expect:
      experience: 30
  - type: trace_count
    event: awarded
    count: 1
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	// The zero grant is a sync pass and carries no award id.
	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, KindCompletion, last.Type)
	assert.NotContains(t, last.Result, "event_id")
}

func TestRun_RejectedGrants(t *testing.T) {
	scenario := mustParse(t, `
name: rejected
user: alice
today: "2026-10-14"
flow:
  - action: grant
    amount: 10
    expect:
      case: NotReconciled
  - action: reconcile
  - action: grant
    user: bob
    amount: 10
    expect:
      case: SessionMismatch
  - action: grant
    amount: -5
    expect:
      case: InvalidAmount
assertions:
  - type: trace_count
    event: awarded
    count: 0
  - type: final_state
    copy: local
    expect:
      experience: 0
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	scenario := mustParse(t, `
name: mismatch
user: alice
today: "2026-10-14"
flow:
  - action: reconcile
  - action: grant
    amount: 10
    expect:
      case: DailyCeilingExceeded
  - action: grant
    amount: 10
    expect:
      case: Success
      result:
        experience: 999
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `expected case "DailyCeilingExceeded", got "Success"`)
	assert.Contains(t, result.Errors[1], `result field "experience" = 20, want 999`)
}

func TestRun_AssertionFailureRecorded(t *testing.T) {
	scenario := mustParse(t, `
name: failing_assertion
user: alice
today: "2026-10-14"
flow:
  - action: reconcile
assertions:
  - type: trace_contains
    action: grant
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: trace_contains")
}

func TestRun_FlatTableAndCustomCeiling(t *testing.T) {
	scenario := mustParse(t, `
name: flat
user: alice
today: "2026-10-14"
config:
  daily_ceiling: 250
  level_table: flat
local:
  experience: 0
  streak: 0
flow:
  - action: reconcile
  - action: grant
    amount: 250
    expect:
      case: Success
      result:
        level: 3
        remaining_today: 0
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FixedEventIDs(t *testing.T) {
	scenario := mustParse(t, `
name: ids
user: alice
today: "2026-10-14"
event_ids: [first]
flow:
  - action: reconcile
  - action: grant
    amount: 1
    expect:
      case: Success
      result:
        event_id: first
  - action: grant
    amount: 1
    expect:
      case: Success
      result:
        event_id: first-2
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_Deterministic(t *testing.T) {
	const yaml = `
name: deterministic
user: alice
today: "2026-10-14"
flow:
  - action: reconcile
  - action: grant
    amount: 60
    source: run
  - action: advance
    days: 1
  - action: grant
    amount: 60
    source: run
`
	first, err := Run(mustParse(t, yaml))
	require.NoError(t, err)
	second, err := Run(mustParse(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.State, second.State)
}

func TestRun_FreshStorePerRun(t *testing.T) {
	const yaml = `
name: fresh
user: alice
today: "2026-10-14"
flow:
  - action: reconcile
  - action: grant
    amount: 100
    expect:
      case: Success
`
	for i := 0; i < 2; i++ {
		result, err := Run(mustParse(t, yaml))
		require.NoError(t, err)
		assert.True(t, result.Pass, "run %d: %v", i, result.Errors)
	}
}

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)

	result.AddError("boom")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"boom"}, result.Errors)
}

func TestResult_AddTrace(t *testing.T) {
	result := NewResult()
	result.AddInvocationTrace("grant", map[string]interface{}{"amount": 5}, 1)
	result.AddCompletionTrace(CaseSuccess, map[string]interface{}{"awarded": 5}, 2)
	result.AddEventTrace("awarded", map[string]interface{}{"amount": 5}, 3)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, TraceEvent{Type: KindInvocation, Action: "grant", Args: map[string]interface{}{"amount": 5}, Seq: 1}, result.Trace[0])
	assert.Equal(t, TraceEvent{Type: KindCompletion, OutputCase: CaseSuccess, Result: map[string]interface{}{"awarded": 5}, Seq: 2}, result.Trace[1])
	assert.Equal(t, TraceEvent{Type: KindEvent, Event: "awarded", Result: map[string]interface{}{"amount": 5}, Seq: 3}, result.Trace[2])
}
