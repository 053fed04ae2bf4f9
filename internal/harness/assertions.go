package harness

import (
	"fmt"
	"reflect"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) == 0 {
		return buf.String()
	}

	// Full trace for context
	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		switch event.Type {
		case KindInvocation:
			fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Action, event.Args)
		case KindCompletion:
			fmt.Fprintf(&buf, "  [%d]   -> %s %v\n", event.Seq, event.OutputCase, event.Result)
		case KindEvent:
			fmt.Fprintf(&buf, "  [%d]   ~ %s %v\n", event.Seq, event.Event, event.Result)
		}
	}

	return buf.String()
}

// target names what a trace assertion looks for.
func target(a Assertion) string {
	if a.Event != "" {
		return "event " + a.Event
	}
	return "action " + a.Action
}

// matches reports whether a trace entry is the action or event a names.
func matches(event TraceEvent, a Assertion) bool {
	if a.Event != "" {
		return event.Type == KindEvent && event.Event == a.Event
	}
	return event.Type == KindInvocation && event.Action == a.Action
}

// fields returns what trace_contains args are matched against.
func fields(event TraceEvent) map[string]interface{} {
	if event.Type == KindEvent {
		return event.Result
	}
	return event.Args
}

// assertTraceContains checks if the trace contains an invocation or event
// matching the specified name and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if matches(event, assertion) && matchArgs(fields(event), assertion.Args) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s with args %v", target(assertion), assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions (or events) appear in the specified order.
// They don't need to be consecutive (intervening entries are allowed), and
// a name may repeat: each one is matched after the previous match.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	names := assertion.Actions
	kind := KindInvocation
	if len(assertion.Events) > 0 {
		names = assertion.Events
		kind = KindEvent
	}

	next := 0
	for _, event := range trace {
		if next == len(names) {
			break
		}
		if event.Type != kind {
			continue
		}
		name := event.Action
		if kind == KindEvent {
			name = event.Event
		}
		if name == names[next] {
			next++
		}
	}

	if next < len(names) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("%ss in order: %v", kind, names),
			Actual:   fmt.Sprintf("matched %v, then no %s", names[:next], names[next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks if the action or event appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if matches(event, assertion) {
			count++
		}
	}

	// Check exact count match
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, target(assertion)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState checks the named progress copy against expected values
// using subset semantics.
func assertFinalState(state map[string]interface{}, assertion Assertion) error {
	raw, ok := state[assertion.Copy]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s copy to exist", assertion.Copy),
			Actual:   "copy absent",
		}
	}
	actual, _ := raw.(map[string]interface{})

	// Check each expected field (subset semantics - only check fields in Expect)
	for _, key := range sortedKeys(assertion.Expect) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s field %q = %v", assertion.Copy, key, expectedValue),
				Actual:   fmt.Sprintf("field %q not present in %v", key, actual),
			}
		}

		if !valuesEqual(actualValue, expectedValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s field %q = %v", assertion.Copy, key, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v", key, actualValue),
			}
		}
	}

	return nil
}

// matchArgs checks if actual args contain all expected args (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual map[string]interface{}, expected map[string]interface{}) bool {
	if len(expected) == 0 {
		return true // No args to match
	}

	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false // Required key missing
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false // Value mismatch
		}
	}

	// Extra keys in actual are OK (subset match)
	return true
}

// valuesEqual compares two values for equality. Numbers compare by value
// whatever their Go type, and nested maps are compared the same way.
func valuesEqual(actual, expected interface{}) bool {
	// Handle nil cases
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}

	if a, ok := asInt64(actual); ok {
		e, ok := asInt64(expected)
		return ok && a == e
	}

	am, aok := actual.(map[string]interface{})
	em, eok := expected.(map[string]interface{})
	if aok && eok {
		if len(am) != len(em) {
			return false
		}
		for k, ev := range em {
			av, ok := am[k]
			if !ok || !valuesEqual(av, ev) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(actual, expected)
}

// asInt64 converts any integer, or a float with no fraction, to int64.
func asInt64(v interface{}) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return 0, false
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.State, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
