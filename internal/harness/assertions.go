package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/sovereign/internal/store"
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

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		if event.Error != "" {
			fmt.Fprintf(&buf, "  [%d] %s error: %s\n", event.Seq, event.Step, event.Error)
			continue
		}
		fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Step, event.Output)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCount:
			err = h.assertCount(ctx, result.Trace, a)
		case AssertTaskStatus:
			err = h.assertTaskStatus(ctx, result.Trace, a)
		case AssertStats:
			err = assertStats(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// assertCount compares the number of rows in a table matching Where.
func (h *Harness) assertCount(ctx context.Context, trace []TraceEvent, a Assertion) error {
	// Sort columns so filter order, and therefore errors, are stable.
	columns := make([]string, 0, len(a.Where))
	for col := range a.Where {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	filters := make([]store.Filter, 0, len(columns))
	for _, col := range columns {
		filters = append(filters, store.Eq(col, a.Where[col]))
	}

	got, err := h.ledger.Store().Count(ctx, store.Table(a.Table), filters...)
	if err != nil {
		return err
	}
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d rows in %s where %v", *a.Count, a.Table, a.Where),
			Actual:   fmt.Sprintf("%d rows", got),
			Trace:    trace,
		}
	}
	return nil
}

// assertTaskStatus checks one task's final status.
func (h *Harness) assertTaskStatus(ctx context.Context, trace []TraceEvent, a Assertion) error {
	id, err := h.resolveTask(ctx, a.Task)
	if err != nil {
		return err
	}
	task, err := h.ledger.Store().GetTask(ctx, id)
	if err != nil {
		return &AssertionError{
			Type:     AssertTaskStatus,
			Expected: fmt.Sprintf("task %q with status %s", a.Task, a.Status),
			Actual:   err.Error(),
			Trace:    trace,
		}
	}
	if task.Status != a.Status {
		return &AssertionError{
			Type:     AssertTaskStatus,
			Expected: fmt.Sprintf("task %q with status %s", a.Task, a.Status),
			Actual:   fmt.Sprintf("status %s", task.Status),
			Trace:    trace,
		}
	}
	return nil
}

// assertStats subset-matches Expect against the report's JSON fields.
func assertStats(result *Result, a Assertion) error {
	actual, err := normalize(result.Stats)
	if err != nil {
		return err
	}
	expected, err := normalize(a.Expect)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			return &AssertionError{
				Type:     AssertStats,
				Expected: fmt.Sprintf("field %s", k),
				Actual:   "no such field in report",
				Trace:    result.Trace,
			}
		}
		if !reflect.DeepEqual(got, expected[k]) {
			return &AssertionError{
				Type:     AssertStats,
				Expected: fmt.Sprintf("%s = %v", k, expected[k]),
				Actual:   fmt.Sprintf("%s = %v", k, got),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// normalize round-trips v through JSON so YAML ints and Go ints compare
// equal.
func normalize(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
