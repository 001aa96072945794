package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/sovereign/internal/batch"
	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/ledger"
	"github.com/roach88/sovereign/internal/store"
	"github.com/roach88/sovereign/internal/telemetry"
	"github.com/roach88/sovereign/internal/testutil"
)

// Harness executes scenario steps against one ledger.
type Harness struct {
	ledger *ledger.Ledger
	clock  *testutil.ManualClock
}

// statusOutput is the trace output of a status step.
type statusOutput struct {
	Task   string        `json:"task"`
	Status ir.TaskStatus `json:"status"`
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with a manual clock and
// sequential ids. Steps run in order; the first unexpected step failure
// stops execution. Assertions are evaluated against whatever state the
// steps left behind.
func Run(scenario *Scenario) (*Result, error) {
	start := scenario.Start
	if start == 0 {
		start = DefaultStart
	}
	clock := testutil.NewManualClock(start)

	l, err := ledger.Open(ledger.Options{
		Path:     ":memory:",
		CacheTTL: time.Minute,
		Logger:   telemetry.Discard(),
		Clock:    clock,
		IDs:      testutil.NewSequenceGenerator("id"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory ledger: %w", err)
	}
	defer l.Close()

	h := &Harness{ledger: l, clock: clock}
	ctx := context.Background()

	result := NewResult()
	for i, step := range scenario.Steps {
		kind := step.Kind()
		out, err := h.execute(ctx, kind, step)
		if err != nil {
			out = nil
		}
		result.addTrace(kind, out, err)

		switch {
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, kind, err))
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q, got none", i, kind, step.ExpectError))
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q, got %v", i, kind, step.ExpectError, err))
		}
		if !result.Pass {
			break
		}
	}

	report, err := l.Metrics().Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	result.Stats = report

	for _, msg := range EvaluateAssertions(ctx, h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs one step and returns its trace output.
func (h *Harness) execute(ctx context.Context, kind string, step Step) (any, error) {
	switch kind {
	case StepSeed:
		return h.ledger.Seed(ctx)

	case StepAdvance:
		return h.clock.Advance(step.Advance), nil

	case StepDecide:
		return h.ledger.Batch().CommitDecisions(ctx, step.Decide)

	case StepLog:
		inputs := make([]batch.ActionInput, len(step.Log))
		for i, e := range step.Log {
			id, err := h.resolveTask(ctx, e.Task)
			if err != nil {
				return nil, err
			}
			inputs[i] = batch.ActionInput{
				TaskID:       id,
				ActorRole:    e.Role,
				Status:       e.Status,
				TimeSpentMin: e.Minutes,
				Note:         e.Note,
			}
		}
		return h.ledger.Batch().LogActions(ctx, inputs)

	case StepStatus:
		id, err := h.resolveTask(ctx, step.Status.Task)
		if err != nil {
			return nil, err
		}
		if err := h.ledger.Batch().SetTaskStatus(ctx, id, step.Status.To); err != nil {
			return nil, err
		}
		return statusOutput{Task: id, Status: step.Status.To}, nil

	case StepLogic:
		v, err := ir.FromNative(step.Logic)
		if err != nil {
			return nil, fmt.Errorf("logic payload: %w", err)
		}
		return h.ledger.SetLogic(ctx, v.(ir.Object))
	}
	return nil, fmt.Errorf("unknown step kind %q", kind)
}

// resolveTask maps a task title to its id. A reference that matches no
// title is returned unchanged and treated as an id.
func (h *Harness) resolveTask(ctx context.Context, ref string) (string, error) {
	tasks, err := h.ledger.Tasks(ctx, store.Query{})
	if err != nil {
		return "", err
	}
	for _, t := range tasks {
		if t.Title == ref {
			return t.ID, nil
		}
	}
	return ref, nil
}
