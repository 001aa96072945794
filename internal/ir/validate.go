package ir

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed record or batch input. It is always
// returned before any transaction begins.
type ValidationError struct {
	Entity  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s: %s", e.Entity, e.Message)
	}
	return fmt.Sprintf("invalid %s.%s: %s", e.Entity, e.Field, e.Message)
}

func invalid(entity, field, format string, args ...any) *ValidationError {
	return &ValidationError{Entity: entity, Field: field, Message: fmt.Sprintf(format, args...)}
}

func required(entity, field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid(entity, field, "is required")
	}
	return nil
}

// Valid reports whether k is a known node kind.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeActor, NodeAsset, NodeOrg:
		return true
	}
	return false
}

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionDo, DecisionDelegate, DecisionStop:
		return true
	}
	return false
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskActive, TaskDone:
		return true
	}
	return false
}

// Open reports whether the task still counts toward backlog.
func (s TaskStatus) Open() bool {
	return s == TaskPending || s == TaskActive
}

// Valid reports whether s is a known action status.
func (s ActionStatus) Valid() bool {
	switch s {
	case ActionCompleted, ActionDelayed, ActionNeedsDecision, ActionInProgress:
		return true
	}
	return false
}

// CanTransition reports whether a task may move from one status to another.
// done is terminal; pending may be set directly from any open status.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case TaskPending:
		return to == TaskActive || to == TaskDone
	case TaskActive:
		return to == TaskDone || to == TaskPending
	}
	return false
}

func (n Node) Validate() error {
	if err := required("node", "id", n.ID); err != nil {
		return err
	}
	if !n.Kind.Valid() {
		return invalid("node", "kind", "unknown kind %q", n.Kind)
	}
	if n.Tier < 0 {
		return invalid("node", "tier", "must be >= 0, got %d", n.Tier)
	}
	return required("node", "label", n.Label)
}

func (m Motion) Validate() error {
	if err := required("motion", "id", m.ID); err != nil {
		return err
	}
	if err := required("motion", "source_node_id", m.SourceNodeID); err != nil {
		return err
	}
	return required("motion", "target_node_id", m.TargetNodeID)
}

func (d DecisionEvent) Validate() error {
	if err := required("decision", "id", d.ID); err != nil {
		return err
	}
	if err := required("decision", "title", d.Title); err != nil {
		return err
	}
	if !d.Decision.Valid() {
		return invalid("decision", "decision", "unknown decision %q", d.Decision)
	}
	return nil
}

func (t Task) Validate() error {
	if err := required("task", "id", t.ID); err != nil {
		return err
	}
	if !t.Status.Valid() {
		return invalid("task", "status", "unknown status %q", t.Status)
	}
	return nil
}

func (a ActionLog) Validate() error {
	if err := required("action_log", "id", a.ID); err != nil {
		return err
	}
	if err := required("action_log", "task_id", a.TaskID); err != nil {
		return err
	}
	if !a.ActionStatus.Valid() {
		return invalid("action_log", "action_status", "unknown status %q", a.ActionStatus)
	}
	if a.TimeSpentMin != nil && *a.TimeSpentMin < 0 {
		return invalid("action_log", "time_spent_min", "must be >= 0")
	}
	return nil
}

func (p Proof) Validate() error {
	if err := required("proof", "id", p.ID); err != nil {
		return err
	}
	if err := required("proof", "related_id", p.RelatedID); err != nil {
		return err
	}
	return required("proof", "related_type", p.RelatedType)
}

func (l LogicConfig) Validate() error {
	if err := required("logic", "id", l.ID); err != nil {
		return err
	}
	if l.Payload == nil {
		return invalid("logic", "payload", "is required")
	}
	return nil
}

func (s SyncMessage) Validate() error {
	if err := required("sync_message", "id", s.ID); err != nil {
		return err
	}
	return required("sync_message", "type", s.Type)
}
