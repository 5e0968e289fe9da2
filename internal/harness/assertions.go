package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/statewire/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []ir.DispatchRecord
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, rec := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", rec.Seq, describeRecord(rec))
		}
	}
	return buf.String()
}

func describeRecord(rec ir.DispatchRecord) string {
	var b strings.Builder
	b.WriteString(string(rec.Kind))
	if rec.Signal != "" {
		fmt.Fprintf(&b, " %s", rec.Signal)
	}
	fmt.Fprintf(&b, " %s -> %s", rec.State, rec.NextState)
	if rec.Connection != "" {
		fmt.Fprintf(&b, " via %s", rec.Connection)
	}
	if len(rec.Spies) > 0 {
		fmt.Fprintf(&b, " spies %v", rec.Spies)
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, " error %q", rec.Error)
	}
	return b.String()
}

// EvaluateAssertions checks every assertion against a result and returns
// one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertSpyFired:
		return assertSpyFired(result.Trace, a)
	case AssertStatePath:
		return assertStatePath(result.Trace, a)
	case AssertFinalState:
		return assertFinalState(result, a)
	case AssertNoErrors:
		return assertNoErrors(result.Trace)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceContains passes when the connection matched or fired as a spy.
func assertTraceContains(trace []ir.DispatchRecord, a Assertion) error {
	for _, rec := range trace {
		if rec.Connection == a.Connection || slices.Contains(rec.Spies, a.Connection) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("connection %s in trace", a.Connection),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks the first match of each connection appears in
// order. Connections need not be consecutive.
func assertTraceOrder(trace []ir.DispatchRecord, a Assertion) error {
	positions := make(map[string]int)
	for i, rec := range trace {
		if rec.Connection == "" {
			continue
		}
		if _, seen := positions[rec.Connection]; !seen {
			positions[rec.Connection] = i + 1
		}
	}

	for _, conn := range a.Connections {
		if positions[conn] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all connections present: %v", a.Connections),
				Actual:   fmt.Sprintf("missing connection: %s", conn),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Connections); i++ {
		prev, curr := a.Connections[i-1], a.Connections[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("connections in order: %v", a.Connections),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount counts cycles matched by the connection.
func assertTraceCount(trace []ir.DispatchRecord, a Assertion) error {
	count := 0
	for _, rec := range trace {
		if rec.Connection == a.Connection {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d matches of %s", a.Count, a.Connection),
			Actual:   fmt.Sprintf("%d matches", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertSpyFired(trace []ir.DispatchRecord, a Assertion) error {
	for _, rec := range trace {
		if slices.Contains(rec.Spies, a.Connection) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertSpyFired,
		Expected: fmt.Sprintf("spy %s fired", a.Connection),
		Actual:   "never fired",
		Trace:    trace,
	}
}

// statePath lists the start state followed by every state entered.
func statePath(trace []ir.DispatchRecord) []string {
	var path []string
	for _, rec := range trace {
		if rec.Kind == ir.RecordInit && rec.Error == "" {
			path = append(path, rec.NextState)
			continue
		}
		if rec.Transitioned() {
			path = append(path, rec.NextState)
		}
	}
	return path
}

func assertStatePath(trace []ir.DispatchRecord, a Assertion) error {
	got := statePath(trace)
	if !slices.Equal(got, a.States) {
		return &AssertionError{
			Type:     AssertStatePath,
			Expected: strings.Join(a.States, " -> "),
			Actual:   strings.Join(got, " -> "),
			Trace:    trace,
		}
	}
	return nil
}

func assertFinalState(result *Result, a Assertion) error {
	if result.FinalState != a.State {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: a.State,
			Actual:   result.FinalState,
		}
	}
	return nil
}

func assertNoErrors(trace []ir.DispatchRecord) error {
	var failed []string
	for _, rec := range trace {
		if rec.Error != "" {
			failed = append(failed, fmt.Sprintf("seq %d: %s", rec.Seq, rec.Error))
		}
	}
	if len(failed) > 0 {
		return &AssertionError{
			Type:     AssertNoErrors,
			Expected: "no failed cycles",
			Actual:   strings.Join(failed, "; "),
			Trace:    trace,
		}
	}
	return nil
}
