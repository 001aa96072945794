// Package batch groups related ledger writes into single transactions.
//
// Every batch is validated up front. Once a transaction starts, either all
// of its rows land or none do.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/store"
)

var (
	// ErrTaskNotFound is returned when an action log names a missing task.
	// The whole batch is aborted.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned for a status change the task
	// lifecycle does not allow (anything out of done).
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// DecisionInput is one decision to record. A task is derived from it unless
// the decision is stop.
type DecisionInput struct {
	Title    string      `json:"title" yaml:"title"`
	Context  string      `json:"context,omitempty" yaml:"context,omitempty"`
	Decision ir.Decision `json:"decision" yaml:"decision"`
	Priority int         `json:"priority,omitempty" yaml:"priority,omitempty"`
	DueAt    *int64      `json:"due_at,omitempty" yaml:"due_at,omitempty"`
}

// ActionInput is one action log to record against an existing task.
type ActionInput struct {
	TaskID       string          `json:"task_id" yaml:"task_id"`
	ActorRole    string          `json:"actor_role" yaml:"actor_role"`
	Status       ir.ActionStatus `json:"action_status" yaml:"action_status"`
	TimeSpentMin *int            `json:"time_spent_min,omitempty" yaml:"time_spent_min,omitempty"`
	Note         string          `json:"note,omitempty" yaml:"note,omitempty"`
}

// Processor runs batches against a store.
type Processor struct {
	store  *store.Store
	logger *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// New creates a processor writing to s. Ids come from the store's
// generator, so tests inject one with store.WithIDGenerator.
func New(s *store.Store, opts ...Option) *Processor {
	p := &Processor{store: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CommitDecisions records each input as a DecisionEvent and, when the
// decision is not stop, a pending Task pointing back at it. Returns the
// decision ids in input order. An empty batch is a no-op.
func (p *Processor) CommitDecisions(ctx context.Context, inputs []DecisionInput) ([]string, error) {
	for i, in := range inputs {
		if err := in.validate(i); err != nil {
			return nil, err
		}
	}
	if len(inputs) == 0 {
		return []string{}, nil
	}

	ids := make([]string, 0, len(inputs))
	err := p.store.Transaction(ctx, []store.Table{store.TableDecisions, store.TableTasks}, func(tx *store.Tx) error {
		for _, in := range inputs {
			d, err := tx.InsertDecision(ctx, ir.DecisionEvent{
				Title:    in.Title,
				Context:  in.Context,
				Decision: in.Decision,
			})
			if err != nil {
				return err
			}
			ids = append(ids, d.ID)

			if in.Decision == ir.DecisionStop {
				continue
			}
			if _, err := tx.InsertTask(ctx, ir.Task{
				Title:            in.Title,
				Status:           ir.TaskPending,
				Priority:         in.Priority,
				DueAt:            in.DueAt,
				SourceDecisionID: d.ID,
				CreatedAt:        d.CreatedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit decisions: %w", err)
	}

	p.logger.Info("decisions committed", "count", len(ids))
	return ids, nil
}

// LogActions records each input as an ActionLog. A completed action marks
// its task done in the same transaction. Returns the action log ids in
// input order.
func (p *Processor) LogActions(ctx context.Context, inputs []ActionInput) ([]string, error) {
	for i, in := range inputs {
		if err := in.validate(i); err != nil {
			return nil, err
		}
	}
	if len(inputs) == 0 {
		return []string{}, nil
	}

	ids := make([]string, 0, len(inputs))
	completed := 0
	err := p.store.Transaction(ctx, []store.Table{store.TableActionLogs, store.TableTasks}, func(tx *store.Tx) error {
		for _, in := range inputs {
			task, err := tx.GetTask(ctx, in.TaskID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %q", ErrTaskNotFound, in.TaskID)
			}
			if err != nil {
				return err
			}

			a, err := tx.InsertActionLog(ctx, ir.ActionLog{
				TaskID:       in.TaskID,
				ActorRole:    in.ActorRole,
				ActionStatus: in.Status,
				TimeSpentMin: in.TimeSpentMin,
				Note:         in.Note,
			})
			if err != nil {
				return err
			}
			ids = append(ids, a.ID)

			if in.Status == ir.ActionCompleted && task.Status != ir.TaskDone {
				if err := tx.SetTaskStatus(ctx, task.ID, ir.TaskDone); err != nil {
					return err
				}
				completed++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("log actions: %w", err)
	}

	p.logger.Info("actions logged", "count", len(ids), "tasks_completed", completed)
	return ids, nil
}

// SetTaskStatus moves one task along pending → active → done. Setting
// pending from active is allowed; nothing leaves done.
func (p *Processor) SetTaskStatus(ctx context.Context, id string, status ir.TaskStatus) error {
	if !status.Valid() {
		return &ir.ValidationError{Entity: "task", Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	err := p.store.Transaction(ctx, []store.Table{store.TableTasks}, func(tx *store.Tx) error {
		task, err := tx.GetTask(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrTaskNotFound, id)
		}
		if err != nil {
			return err
		}
		if !ir.CanTransition(task.Status, status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, status)
		}
		if task.Status == status {
			return nil
		}
		return tx.SetTaskStatus(ctx, id, status)
	})
	if err != nil {
		return fmt.Errorf("set task %s status: %w", id, err)
	}
	return nil
}

func (in DecisionInput) validate(i int) error {
	entity := fmt.Sprintf("decisions[%d]", i)
	if strings.TrimSpace(in.Title) == "" {
		return &ir.ValidationError{Entity: entity, Field: "title", Message: "is required"}
	}
	if !in.Decision.Valid() {
		return &ir.ValidationError{Entity: entity, Field: "decision", Message: fmt.Sprintf("unknown decision %q", in.Decision)}
	}
	if in.Priority < 0 {
		return &ir.ValidationError{Entity: entity, Field: "priority", Message: "must be >= 0"}
	}
	return nil
}

func (in ActionInput) validate(i int) error {
	entity := fmt.Sprintf("actions[%d]", i)
	if strings.TrimSpace(in.TaskID) == "" {
		return &ir.ValidationError{Entity: entity, Field: "task_id", Message: "is required"}
	}
	if !in.Status.Valid() {
		return &ir.ValidationError{Entity: entity, Field: "action_status", Message: fmt.Sprintf("unknown status %q", in.Status)}
	}
	if in.TimeSpentMin != nil && *in.TimeSpentMin < 0 {
		return &ir.ValidationError{Entity: entity, Field: "time_spent_min", Message: "must be >= 0"}
	}
	return nil
}
