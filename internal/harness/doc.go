// Package harness runs scripted progress scenarios against a real engine.
//
// Each scenario seeds the local cache and the remote document, then drives
// the engine through a flow of reconcile and grant calls on a fixed calendar.
// Every call, its outcome and every event the engine publishes is recorded in
// a trace that assertions and golden files are checked against.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	user: alice
//	today: "2026-10-14"
//	config:
//	  daily_ceiling: 100
//	  level_table: graduated
//	  repeatable_sources: [water]
//	local:
//	  experience: 300
//	  streak: 5
//	  last_active: "2026-10-14"
//	remote:
//	  experience: 500
//	  streak: 3
//	  last_active: "2026-10-13"
//	flow:
//	  - action: reconcile
//	  - action: grant
//	    amount: 20
//	    source: exercise
//	    expect:
//	      case: Success
//	      result: { experience: 520 }
//	  - action: advance
//	    days: 1
//	assertions:
//	  - type: trace_contains
//	    event: awarded
//	  - type: final_state
//	    copy: remote
//	    expect: { experience: 520, streak: 5 }
//
// # Actions
//
//   - reconcile: Engine.Reconcile for the step's user (default: scenario user)
//   - grant: Engine.Grant with amount and source
//   - advance: moves the fixed clock forward by days
//   - offline / online: toggles remote availability
//
// # Assertion Types
//
//   - trace_contains: an invocation (action) or engine event (event) with matching args
//   - trace_order: actions, or events, appear in the given order
//   - trace_count: an action or event appears exactly N times
//   - final_state: the local, remote or session copy has the expected fields
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory SQLite cache, an in-memory remote, a
// testutil.FixedClock starting at today and fixed award ids, so the same
// scenario always yields the same trace.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/daily_ceiling.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
