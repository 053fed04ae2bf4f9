package harness

// Trace entry kinds.
const (
	KindInvocation = "invocation"
	KindCompletion = "completion"
	KindEvent      = "event"
)

// TraceEvent is one entry in a scenario trace: a call into the engine, its
// outcome, or an event the engine published.
type TraceEvent struct {
	Type       string                 `json:"type"` // "invocation", "completion" or "event"
	Action     string                 `json:"action,omitempty"`
	Args       map[string]interface{} `json:"args,omitempty"`
	OutputCase string                 `json:"output_case,omitempty"`
	Event      string                 `json:"event,omitempty"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Seq        int64                  `json:"seq"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains all invocations, completions and events in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the final local, remote and session copies, keyed by copy
	// name, in the field layout final_state assertions use.
	State map[string]interface{} `json:"state,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]interface{}),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace adds a call into the engine to the trace.
func (r *Result) AddInvocationTrace(action string, args map[string]interface{}, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   KindInvocation,
		Action: action,
		Args:   args,
		Seq:    seq,
	})
}

// AddCompletionTrace adds the outcome of the preceding invocation.
func (r *Result) AddCompletionTrace(outputCase string, result map[string]interface{}, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       KindCompletion,
		OutputCase: outputCase,
		Result:     result,
		Seq:        seq,
	})
}

// AddEventTrace adds a published engine event.
func (r *Result) AddEventTrace(event string, payload map[string]interface{}, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   KindEvent,
		Event:  event,
		Result: payload,
		Seq:    seq,
	})
}
