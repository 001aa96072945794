package store

import (
	"context"
	"fmt"

	"github.com/roach88/sovereign/internal/ir"
)

// stamp fills a missing id and timestamp. Rows restored from a backup keep
// their original identity.
func (tx *Tx) stamp(id *string, ts *int64) {
	if *id == "" {
		*id = tx.store.ids.NewID()
	}
	if *ts == 0 {
		*ts = tx.store.clock.NowMillis()
	}
}

func (tx *Tx) exec(ctx context.Context, op string, t Table, query string, args ...any) (int64, error) {
	if err := tx.require(op, t); err != nil {
		return 0, err
	}
	res, err := tx.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, txErr(op, t, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, txErr(op, t, err)
	}
	return n, nil
}

// InsertNode inserts a node and returns it with id and created_at filled.
func (tx *Tx) InsertNode(ctx context.Context, n ir.Node) (ir.Node, error) {
	tx.stamp(&n.ID, &n.CreatedAt)
	n.Label = ir.NormalizeText(n.Label)
	_, err := tx.exec(ctx, "insert", TableNodes,
		`INSERT INTO nodes (`+nodeColumns+`) VALUES (?, ?, ?, ?, ?)`,
		n.ID, string(n.Kind), n.Label, n.Tier, n.CreatedAt)
	return n, err
}

// UpdateNode rewrites a node's mutable fields. Returns ErrNotFound if missing.
func (tx *Tx) UpdateNode(ctx context.Context, n ir.Node) error {
	affected, err := tx.exec(ctx, "update", TableNodes,
		`UPDATE nodes SET kind = ?, label = ?, tier = ? WHERE id = ?`,
		string(n.Kind), ir.NormalizeText(n.Label), n.Tier, n.ID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &TxError{Op: "update", Table: TableNodes, Err: fmt.Errorf("%q: %w", n.ID, ErrNotFound)}
	}
	return nil
}

// InsertMotion inserts a motion. Node references are not checked.
func (tx *Tx) InsertMotion(ctx context.Context, m ir.Motion) (ir.Motion, error) {
	tx.stamp(&m.ID, &m.CreatedAt)
	_, err := tx.exec(ctx, "insert", TableMotions,
		`INSERT INTO motions (`+motionColumns+`) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Kind, m.SourceNodeID, m.TargetNodeID, m.CreatedAt)
	return m, err
}

// InsertDecision appends a decision event. Decision events are never
// updated; there is deliberately no UpdateDecision.
func (tx *Tx) InsertDecision(ctx context.Context, d ir.DecisionEvent) (ir.DecisionEvent, error) {
	tx.stamp(&d.ID, &d.CreatedAt)
	d.Title = ir.NormalizeText(d.Title)
	d.Context = ir.NormalizeText(d.Context)
	_, err := tx.exec(ctx, "insert", TableDecisions,
		`INSERT INTO decisions (`+decisionColumns+`) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.CreatedAt, d.Title, d.Context, string(d.Decision))
	return d, err
}

// InsertTask inserts a task.
func (tx *Tx) InsertTask(ctx context.Context, t ir.Task) (ir.Task, error) {
	tx.stamp(&t.ID, &t.CreatedAt)
	t.Title = ir.NormalizeText(t.Title)
	_, err := tx.exec(ctx, "insert", TableTasks,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, string(t.Status), t.Priority, nullInt64(t.DueAt), t.SourceDecisionID, t.CreatedAt)
	return t, err
}

// UpdateTask rewrites a task's mutable fields. The status lifecycle is not
// checked here; see batch.Processor.SetTaskStatus.
func (tx *Tx) UpdateTask(ctx context.Context, t ir.Task) error {
	affected, err := tx.exec(ctx, "update", TableTasks,
		`UPDATE tasks SET title = ?, status = ?, priority = ?, due_at = ? WHERE id = ?`,
		ir.NormalizeText(t.Title), string(t.Status), t.Priority, nullInt64(t.DueAt), t.ID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &TxError{Op: "update", Table: TableTasks, Err: fmt.Errorf("%q: %w", t.ID, ErrNotFound)}
	}
	return nil
}

// SetTaskStatus sets one task's status. Returns ErrNotFound if missing.
func (tx *Tx) SetTaskStatus(ctx context.Context, id string, status ir.TaskStatus) error {
	affected, err := tx.exec(ctx, "update", TableTasks,
		`UPDATE tasks SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return &TxError{Op: "update", Table: TableTasks, Err: fmt.Errorf("%q: %w", id, ErrNotFound)}
	}
	return nil
}

// InsertActionLog inserts an action log. logged_at plays the created_at role.
func (tx *Tx) InsertActionLog(ctx context.Context, a ir.ActionLog) (ir.ActionLog, error) {
	tx.stamp(&a.ID, &a.LoggedAt)
	a.Note = ir.NormalizeText(a.Note)
	_, err := tx.exec(ctx, "insert", TableActionLogs,
		`INSERT INTO action_logs (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TaskID, a.ActorRole, string(a.ActionStatus), nullInt(a.TimeSpentMin), a.Note, a.LoggedAt)
	return a, err
}

// InsertProof appends a proof. Proofs are never updated.
func (tx *Tx) InsertProof(ctx context.Context, p ir.Proof) (ir.Proof, error) {
	tx.stamp(&p.ID, &p.CreatedAt)
	_, err := tx.exec(ctx, "insert", TableProofs,
		`INSERT INTO proofs (`+proofColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.RelatedID, p.RelatedType, p.Kind, p.URI, p.CreatedAt)
	return p, err
}

// PutLogic inserts or replaces a logic config row by id.
func (tx *Tx) PutLogic(ctx context.Context, l ir.LogicConfig) (ir.LogicConfig, error) {
	tx.stamp(&l.ID, &l.UpdatedAt)
	payload, err := marshalObject(l.Payload)
	if err != nil {
		return l, &TxError{Op: "put", Table: TableLogic, Err: err}
	}
	_, err = tx.exec(ctx, "put", TableLogic,
		`INSERT INTO logic (`+logicColumns+`) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at, payload = excluded.payload`,
		l.ID, l.UpdatedAt, payload)
	return l, err
}

// InsertSyncMessage stores a peer-sync envelope.
func (tx *Tx) InsertSyncMessage(ctx context.Context, m ir.SyncMessage) (ir.SyncMessage, error) {
	tx.stamp(&m.ID, &m.CreatedAt)
	body, err := marshalObject(m.Body)
	if err != nil {
		return m, &TxError{Op: "insert", Table: TableSyncMessages, Err: err}
	}
	_, err = tx.exec(ctx, "insert", TableSyncMessages,
		`INSERT INTO sync_messages (`+syncColumns+`) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Type, m.SenderID, body, m.CreatedAt)
	return m, err
}

// Delete removes one row by id. Returns false if it did not exist.
// Decisions and proofs are append-only and can only go through Clear.
func (tx *Tx) Delete(ctx context.Context, t Table, id string) (bool, error) {
	if !t.Valid() {
		return false, &TxError{Op: "delete", Table: t, Err: ErrUnknownTable}
	}
	if t.AppendOnly() {
		return false, &TxError{Op: "delete", Table: t, Err: ErrAppendOnly}
	}
	n, err := tx.exec(ctx, "delete", t, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t), id)
	return n > 0, err
}

// Clear removes every row of t and returns how many were deleted.
func (tx *Tx) Clear(ctx context.Context, t Table) (int64, error) {
	if !t.Valid() {
		return 0, &TxError{Op: "clear", Table: t, Err: ErrUnknownTable}
	}
	return tx.exec(ctx, "clear", t, fmt.Sprintf("DELETE FROM %s", t))
}

// InsertNode inserts one node in its own transaction.
func (s *Store) InsertNode(ctx context.Context, n ir.Node) (ir.Node, error) {
	return single(ctx, s, TableNodes, func(tx *Tx) (ir.Node, error) { return tx.InsertNode(ctx, n) })
}

// UpdateNode updates one node in its own transaction.
func (s *Store) UpdateNode(ctx context.Context, n ir.Node) error {
	_, err := single(ctx, s, TableNodes, func(tx *Tx) (struct{}, error) { return struct{}{}, tx.UpdateNode(ctx, n) })
	return err
}

// InsertMotion inserts one motion in its own transaction.
func (s *Store) InsertMotion(ctx context.Context, m ir.Motion) (ir.Motion, error) {
	return single(ctx, s, TableMotions, func(tx *Tx) (ir.Motion, error) { return tx.InsertMotion(ctx, m) })
}

// InsertDecision appends one decision event in its own transaction.
func (s *Store) InsertDecision(ctx context.Context, d ir.DecisionEvent) (ir.DecisionEvent, error) {
	return single(ctx, s, TableDecisions, func(tx *Tx) (ir.DecisionEvent, error) { return tx.InsertDecision(ctx, d) })
}

// InsertTask inserts one task in its own transaction.
func (s *Store) InsertTask(ctx context.Context, t ir.Task) (ir.Task, error) {
	return single(ctx, s, TableTasks, func(tx *Tx) (ir.Task, error) { return tx.InsertTask(ctx, t) })
}

// UpdateTask updates one task in its own transaction.
func (s *Store) UpdateTask(ctx context.Context, t ir.Task) error {
	_, err := single(ctx, s, TableTasks, func(tx *Tx) (struct{}, error) { return struct{}{}, tx.UpdateTask(ctx, t) })
	return err
}

// InsertActionLog inserts one action log in its own transaction. Use
// batch.Processor.LogActions to get the completed → done side effect.
func (s *Store) InsertActionLog(ctx context.Context, a ir.ActionLog) (ir.ActionLog, error) {
	return single(ctx, s, TableActionLogs, func(tx *Tx) (ir.ActionLog, error) { return tx.InsertActionLog(ctx, a) })
}

// InsertProof appends one proof in its own transaction.
func (s *Store) InsertProof(ctx context.Context, p ir.Proof) (ir.Proof, error) {
	return single(ctx, s, TableProofs, func(tx *Tx) (ir.Proof, error) { return tx.InsertProof(ctx, p) })
}

// PutLogic writes one logic config row in its own transaction.
func (s *Store) PutLogic(ctx context.Context, l ir.LogicConfig) (ir.LogicConfig, error) {
	return single(ctx, s, TableLogic, func(tx *Tx) (ir.LogicConfig, error) { return tx.PutLogic(ctx, l) })
}

// InsertSyncMessage stores one envelope in its own transaction.
func (s *Store) InsertSyncMessage(ctx context.Context, m ir.SyncMessage) (ir.SyncMessage, error) {
	return single(ctx, s, TableSyncMessages, func(tx *Tx) (ir.SyncMessage, error) { return tx.InsertSyncMessage(ctx, m) })
}

// Delete removes one row in its own transaction.
func (s *Store) Delete(ctx context.Context, t Table, id string) (bool, error) {
	return single(ctx, s, t, func(tx *Tx) (bool, error) { return tx.Delete(ctx, t, id) })
}
