package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/growth/internal/date"
	"github.com/roach88/growth/internal/level"
)

// Scenario defines a scripted run against the engine.
// Scenarios seed both progress copies, execute a flow of actions
// and assert on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// User is the default user for every step.
	User string `yaml:"user"`

	// Today is the fixed clock's starting date (YYYY-MM-DD).
	Today string `yaml:"today"`

	// Config tunes the engine. Zero values keep the engine defaults.
	Config EngineConfig `yaml:"config,omitempty"`

	// Local and Remote seed the two progress copies. Nil means absent.
	Local  *Record `yaml:"local,omitempty"`
	Remote *Record `yaml:"remote,omitempty"`

	// Flow contains the main test flow - actions with expected outcomes.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`

	// EventIDs are handed out in order as award ids.
	// If empty, awards are numbered award-1, award-2, ...
	EventIDs []string `yaml:"event_ids,omitempty"`
}

// EngineConfig mirrors the engine options a scenario may set.
type EngineConfig struct {
	DailyCeiling      int      `yaml:"daily_ceiling,omitempty"`
	LevelTable        string   `yaml:"level_table,omitempty"`
	RetentionDays     int      `yaml:"retention_days,omitempty"`
	RepeatableSources []string `yaml:"repeatable_sources,omitempty"`
}

// Record seeds one copy of a user's progress. A zero Level is derived
// from Experience.
type Record struct {
	Experience     int            `yaml:"experience"`
	Level          int            `yaml:"level,omitempty"`
	Streak         int            `yaml:"streak"`
	LastActive     string         `yaml:"last_active,omitempty"`
	TasksCompleted int            `yaml:"tasks_completed,omitempty"`
	PerTask        map[string]int `yaml:"per_task,omitempty"`
}

// FlowStep is one action in the flow.
type FlowStep struct {
	// Action is one of reconcile, grant, advance, offline, online.
	Action string `yaml:"action"`

	// User overrides the scenario user for reconcile and grant.
	User string `yaml:"user,omitempty"`

	// Amount and Source are the grant arguments.
	Amount int    `yaml:"amount,omitempty"`
	Source string `yaml:"source,omitempty"`

	// Days is how far advance moves the clock.
	Days int `yaml:"days,omitempty"`

	// Expect specifies the expected completion.
	// If nil, no validation is performed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected completion behavior.
type ExpectClause struct {
	// Case is the expected output case (e.g., "Success", "DailyCeilingExceeded").
	Case string `yaml:"case"`

	// Result contains expected result field values.
	// This is a subset match - only specified fields are validated.
	// If nil, only the case is validated.
	Result map[string]interface{} `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check an action or event appears with args
	// - "trace_order": Check actions or events appear in order
	// - "trace_count": Check an action or event appears exactly N times
	// - "final_state": Check a progress copy's fields
	Type string `yaml:"type"`

	// Action is an action name; Event an engine event type. Trace assertions
	// use exactly one of them.
	Action string `yaml:"action,omitempty"`
	Event  string `yaml:"event,omitempty"`

	// Args are the expected invocation args or event payload (used by trace_contains).
	// Subset match - only specified fields are validated.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Copy is local, remote or session (used by final_state).
	Copy string `yaml:"copy,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions and Events are the expected order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`
	Events  []string `yaml:"events,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Flow actions.
const (
	ActionReconcile = "reconcile"
	ActionGrant     = "grant"
	ActionAdvance   = "advance"
	ActionOffline   = "offline"
	ActionOnline    = "online"
)

// Progress copies a final_state assertion can inspect.
const (
	CopyLocal   = "local"
	CopyRemote  = "remote"
	CopySession = "session"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Validate required fields
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.User == "" {
		return fmt.Errorf("user is required")
	}
	if _, err := date.Parse(s.Today); err != nil {
		return fmt.Errorf("today: %w", err)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow must have at least one step")
	}

	if s.Config.DailyCeiling < 0 {
		return fmt.Errorf("config.daily_ceiling must be non-negative")
	}
	if s.Config.RetentionDays < 0 {
		return fmt.Errorf("config.retention_days must be non-negative")
	}
	if s.Config.LevelTable != "" {
		if _, ok := level.NewRegistry().Lookup(s.Config.LevelTable); !ok {
			return fmt.Errorf("config.level_table: unknown table %q", s.Config.LevelTable)
		}
	}

	for name, r := range map[string]*Record{"local": s.Local, "remote": s.Remote} {
		if r == nil || r.LastActive == "" {
			continue
		}
		if _, err := date.Parse(r.LastActive); err != nil {
			return fmt.Errorf("%s.last_active: %w", name, err)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step FlowStep) error {
	switch step.Action {
	case ActionReconcile, ActionOffline, ActionOnline:
	case ActionGrant:
		// Negative amounts are allowed so scenarios can check the rejection.
	case ActionAdvance:
		if step.Days == 0 {
			return fmt.Errorf("flow[%d]: days is required for advance", index)
		}
	case "":
		return fmt.Errorf("flow[%d]: action is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown action %q", index, step.Action)
	}
	if step.Expect != nil && step.Expect.Case == "" {
		return fmt.Errorf("flow[%d]: expect.case is required", index)
	}
	return nil
}

// validateAssertion checks that an assertion has required fields for its type.
func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if (a.Action == "") == (a.Event == "") {
			return fmt.Errorf("assertions[%d]: exactly one of action or event is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if (len(a.Actions) == 0) == (len(a.Events) == 0) {
			return fmt.Errorf("assertions[%d]: exactly one of actions or events is required for trace_order", index)
		}
	case AssertFinalState:
		switch a.Copy {
		case CopyLocal, CopyRemote, CopySession:
		default:
			return fmt.Errorf("assertions[%d]: copy must be local, remote or session for final_state, got %q", index, a.Copy)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
