package ir

// NodeKind classifies a Node in the domain graph.
type NodeKind string

const (
	NodeActor NodeKind = "actor"
	NodeAsset NodeKind = "asset"
	NodeOrg   NodeKind = "org"
)

// Decision is the choice recorded by a DecisionEvent.
type Decision string

const (
	DecisionDo       Decision = "do"
	DecisionDelegate Decision = "delegate"
	DecisionStop     Decision = "stop"
)

// TaskStatus is a Task's lifecycle position: pending → active → done.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskActive  TaskStatus = "active"
	TaskDone    TaskStatus = "done"
)

// ActionStatus is the outcome reported by an ActionLog.
type ActionStatus string

const (
	ActionCompleted     ActionStatus = "completed"
	ActionDelayed       ActionStatus = "delayed"
	ActionNeedsDecision ActionStatus = "needs_decision"
	ActionInProgress    ActionStatus = "in_progress"
)

// Node is an actor, asset or org unit.
type Node struct {
	ID        string   `json:"id"`
	Kind      NodeKind `json:"kind"`
	Label     string   `json:"label"`
	Tier      int      `json:"tier"`
	CreatedAt int64    `json:"created_at"`
}

// Motion is a flow between two Nodes. Node references are weak: the target
// may not exist.
type Motion struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	SourceNodeID string `json:"source_node_id"`
	TargetNodeID string `json:"target_node_id"`
	CreatedAt    int64  `json:"created_at"`
}

// DecisionEvent is an immutable record of a choice. Append-only.
type DecisionEvent struct {
	ID        string   `json:"id"`
	CreatedAt int64    `json:"created_at"`
	Title     string   `json:"title"`
	Context   string   `json:"context"`
	Decision  Decision `json:"decision"`
}

// Task is a unit of work, usually derived from a DecisionEvent.
type Task struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Status           TaskStatus `json:"status"`
	Priority         int        `json:"priority"`
	DueAt            *int64     `json:"due_at"`
	SourceDecisionID string     `json:"source_decision_id,omitempty"`
	CreatedAt        int64      `json:"created_at"`
}

// ActionLog reports work performed against a Task.
type ActionLog struct {
	ID           string       `json:"id"`
	TaskID       string       `json:"task_id"`
	ActorRole    string       `json:"actor_role"`
	ActionStatus ActionStatus `json:"action_status"`
	TimeSpentMin *int         `json:"time_spent_min"`
	Note         string       `json:"note,omitempty"`
	LoggedAt     int64        `json:"logged_at"`
}

// Proof is an evidentiary attachment for any entity, referenced by id+type.
// Append-only.
type Proof struct {
	ID          string `json:"id"`
	RelatedID   string `json:"related_id"`
	RelatedType string `json:"related_type"`
	Kind        string `json:"kind"`
	URI         string `json:"uri,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// LogicConfig holds mutable weights. At most one row is expected to be active;
// the most recently updated row wins.
type LogicConfig struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updated_at"`
	Payload   Object `json:"payload"`
}

// SyncMessage is an envelope for the optional peer-sync layer. The core only
// stores and exports it.
type SyncMessage struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	SenderID  string `json:"sender_id"`
	Body      Object `json:"body,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// Int64Ptr returns a pointer to v. Used for nullable columns.
func Int64Ptr(v int64) *int64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
