package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sovereign/internal/ir"
)

// querier is satisfied by *sql.DB and *sql.Tx so reads work both inside
// and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Column lists, in scan order.
const (
	nodeColumns     = "id, kind, label, tier, created_at"
	motionColumns   = "id, kind, source_node_id, target_node_id, created_at"
	decisionColumns = "id, created_at, title, context, decision"
	taskColumns     = "id, title, status, priority, due_at, source_decision_id, created_at"
	actionColumns   = "id, task_id, actor_role, action_status, time_spent_min, note, logged_at"
	proofColumns    = "id, related_id, related_type, kind, uri, created_at"
	logicColumns    = "id, updated_at, payload"
	syncColumns     = "id, type, sender_id, body, created_at"
)

// reader holds the read half of the ledger API. Embedded by Store and Tx.
type reader struct {
	q querier
}

// get runs a point lookup by id.
func get[T any](ctx context.Context, q querier, t Table, columns string, id string, scan func(rowScanner) (T, error)) (T, error) {
	row := q.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", columns, t), id)
	v, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, fmt.Errorf("get %s %q: %w", t, id, ErrNotFound)
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("get %s %q: %w", t, id, err)
	}
	return v, nil
}

// list runs a filtered, ordered range read.
// Returns an empty slice (not nil) when nothing matches.
func list[T any](ctx context.Context, q querier, t Table, columns string, query Query, scan func(rowScanner) (T, error)) ([]T, error) {
	tail, args, err := query.build(t)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t, err)
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s%s", columns, t, tail), args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t, err)
	}
	return out, nil
}

// Count returns the number of rows in t matching filters.
func (r reader) Count(ctx context.Context, t Table, filters ...Filter) (int, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("count %s: %w", t, ErrUnknownTable)
	}
	tail, args, err := Query{Filters: filters}.build(t)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", t, err)
	}
	var n int
	if err := r.q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t, tail), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t, err)
	}
	return n, nil
}

// GetNode looks up a node by id. Returns ErrNotFound if missing.
func (r reader) GetNode(ctx context.Context, id string) (ir.Node, error) {
	return get(ctx, r.q, TableNodes, nodeColumns, id, scanNode)
}

// ListNodes returns nodes matching q.
func (r reader) ListNodes(ctx context.Context, q Query) ([]ir.Node, error) {
	return list(ctx, r.q, TableNodes, nodeColumns, q, scanNode)
}

// GetMotion looks up a motion by id.
func (r reader) GetMotion(ctx context.Context, id string) (ir.Motion, error) {
	return get(ctx, r.q, TableMotions, motionColumns, id, scanMotion)
}

// ListMotions returns motions matching q.
func (r reader) ListMotions(ctx context.Context, q Query) ([]ir.Motion, error) {
	return list(ctx, r.q, TableMotions, motionColumns, q, scanMotion)
}

// GetDecision looks up a decision event by id.
func (r reader) GetDecision(ctx context.Context, id string) (ir.DecisionEvent, error) {
	return get(ctx, r.q, TableDecisions, decisionColumns, id, scanDecision)
}

// ListDecisions returns decision events matching q.
func (r reader) ListDecisions(ctx context.Context, q Query) ([]ir.DecisionEvent, error) {
	return list(ctx, r.q, TableDecisions, decisionColumns, q, scanDecision)
}

// GetTask looks up a task by id.
func (r reader) GetTask(ctx context.Context, id string) (ir.Task, error) {
	return get(ctx, r.q, TableTasks, taskColumns, id, scanTask)
}

// ListTasks returns tasks matching q.
func (r reader) ListTasks(ctx context.Context, q Query) ([]ir.Task, error) {
	return list(ctx, r.q, TableTasks, taskColumns, q, scanTask)
}

// GetActionLog looks up an action log by id.
func (r reader) GetActionLog(ctx context.Context, id string) (ir.ActionLog, error) {
	return get(ctx, r.q, TableActionLogs, actionColumns, id, scanActionLog)
}

// ListActionLogs returns action logs matching q, ordered by logged_at.
func (r reader) ListActionLogs(ctx context.Context, q Query) ([]ir.ActionLog, error) {
	return list(ctx, r.q, TableActionLogs, actionColumns, q, scanActionLog)
}

// GetProof looks up a proof by id.
func (r reader) GetProof(ctx context.Context, id string) (ir.Proof, error) {
	return get(ctx, r.q, TableProofs, proofColumns, id, scanProof)
}

// ListProofs returns proofs matching q.
func (r reader) ListProofs(ctx context.Context, q Query) ([]ir.Proof, error) {
	return list(ctx, r.q, TableProofs, proofColumns, q, scanProof)
}

// ListLogic returns logic config rows matching q, ordered by updated_at.
func (r reader) ListLogic(ctx context.Context, q Query) ([]ir.LogicConfig, error) {
	return list(ctx, r.q, TableLogic, logicColumns, q, scanLogic)
}

// ActiveLogic returns the most recently updated logic config row.
// Returns ErrNotFound if the table is empty.
func (r reader) ActiveLogic(ctx context.Context) (ir.LogicConfig, error) {
	rows, err := r.ListLogic(ctx, Query{Order: Desc, Limit: 1})
	if err != nil {
		return ir.LogicConfig{}, err
	}
	if len(rows) == 0 {
		return ir.LogicConfig{}, fmt.Errorf("active logic: %w", ErrNotFound)
	}
	return rows[0], nil
}

// ListSyncMessages returns sync envelopes matching q.
func (r reader) ListSyncMessages(ctx context.Context, q Query) ([]ir.SyncMessage, error) {
	return list(ctx, r.q, TableSyncMessages, syncColumns, q, scanSyncMessage)
}

func scanNode(s rowScanner) (ir.Node, error) {
	var n ir.Node
	var kind string
	err := s.Scan(&n.ID, &kind, &n.Label, &n.Tier, &n.CreatedAt)
	n.Kind = ir.NodeKind(kind)
	return n, err
}

func scanMotion(s rowScanner) (ir.Motion, error) {
	var m ir.Motion
	err := s.Scan(&m.ID, &m.Kind, &m.SourceNodeID, &m.TargetNodeID, &m.CreatedAt)
	return m, err
}

func scanDecision(s rowScanner) (ir.DecisionEvent, error) {
	var d ir.DecisionEvent
	var decision string
	err := s.Scan(&d.ID, &d.CreatedAt, &d.Title, &d.Context, &decision)
	d.Decision = ir.Decision(decision)
	return d, err
}

func scanTask(s rowScanner) (ir.Task, error) {
	var t ir.Task
	var status string
	var due sql.NullInt64
	err := s.Scan(&t.ID, &t.Title, &status, &t.Priority, &due, &t.SourceDecisionID, &t.CreatedAt)
	t.Status = ir.TaskStatus(status)
	if due.Valid {
		t.DueAt = ir.Int64Ptr(due.Int64)
	}
	return t, err
}

func scanActionLog(s rowScanner) (ir.ActionLog, error) {
	var a ir.ActionLog
	var status string
	var spent sql.NullInt64
	err := s.Scan(&a.ID, &a.TaskID, &a.ActorRole, &status, &spent, &a.Note, &a.LoggedAt)
	a.ActionStatus = ir.ActionStatus(status)
	if spent.Valid {
		a.TimeSpentMin = ir.IntPtr(int(spent.Int64))
	}
	return a, err
}

func scanProof(s rowScanner) (ir.Proof, error) {
	var p ir.Proof
	err := s.Scan(&p.ID, &p.RelatedID, &p.RelatedType, &p.Kind, &p.URI, &p.CreatedAt)
	return p, err
}

func scanLogic(s rowScanner) (ir.LogicConfig, error) {
	var l ir.LogicConfig
	var payload string
	if err := s.Scan(&l.ID, &l.UpdatedAt, &payload); err != nil {
		return l, err
	}
	obj, err := unmarshalObject(payload)
	if err != nil {
		return l, fmt.Errorf("logic %q payload: %w", l.ID, err)
	}
	l.Payload = obj
	return l, nil
}

func scanSyncMessage(s rowScanner) (ir.SyncMessage, error) {
	var m ir.SyncMessage
	var body string
	if err := s.Scan(&m.ID, &m.Type, &m.SenderID, &body, &m.CreatedAt); err != nil {
		return m, err
	}
	obj, err := unmarshalObject(body)
	if err != nil {
		return m, fmt.Errorf("sync message %q body: %w", m.ID, err)
	}
	if len(obj) > 0 {
		m.Body = obj
	}
	return m, nil
}
