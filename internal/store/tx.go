package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Tx is a unit of work over a declared set of tables. Reads may touch any
// table; writes are restricted to the declared scope.
//
// A Tx is only valid inside the function passed to Store.Transaction.
// Calling Store methods (rather than Tx methods) from inside that function
// blocks: the store has a single connection and the Tx holds it.
type Tx struct {
	reader

	store   *Store
	tx      *sql.Tx
	scope   []Table
	written []Table
}

// Transaction runs fn inside one SQLite transaction over tables.
//
// All writes made through tx commit together or not at all. If fn returns an
// error or panics, every participating table is left unchanged and the error
// is returned as-is (panics are re-raised after rollback). Writes are applied
// in the order fn issues them.
//
// Once begun, a transaction is not abandoned when ctx is cancelled; it runs
// to commit or rollback. Statements issued with a cancelled ctx fail, which
// rolls the transaction back.
func (s *Store) Transaction(ctx context.Context, tables []Table, fn func(tx *Tx) error) error {
	if len(tables) == 0 {
		return fmt.Errorf("transaction: no tables declared")
	}
	for _, t := range tables {
		if !t.Valid() {
			return fmt.Errorf("transaction: %w: %q", ErrUnknownTable, t)
		}
	}

	sqlTx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("transaction: begin: %w", classify(err))
	}

	tx := &Tx{
		reader: reader{q: sqlTx},
		store:  s,
		tx:     sqlTx,
		scope:  slices.Clone(tables),
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = sqlTx.Rollback()
		s.inst.TxRollbacks.Add(ctx, 1, metric.WithAttributes(attribute.StringSlice("tables", tableNames(tables))))
		s.logger.Warn("transaction rolled back", "tables", tables)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("transaction: commit: %w", classify(err))
	}
	committed = true

	s.inst.TxCommits.Add(ctx, 1, metric.WithAttributes(attribute.StringSlice("tables", tableNames(tables))))
	s.logger.Debug("transaction committed", "tables", tables, "written", tx.written)
	s.notify(tx.written)
	return nil
}

// single runs one write as its own transaction over one table.
func single[T any](ctx context.Context, s *Store, t Table, fn func(tx *Tx) (T, error)) (T, error) {
	var out T
	err := s.Transaction(ctx, []Table{t}, func(tx *Tx) error {
		var err error
		out, err = fn(tx)
		return err
	})
	return out, err
}

// Scope returns the tables this transaction may write.
func (tx *Tx) Scope() []Table {
	return slices.Clone(tx.scope)
}

// require checks t is in scope and records it as written.
func (tx *Tx) require(op string, t Table) error {
	if !slices.Contains(tx.scope, t) {
		return &TxError{Op: op, Table: t, Err: ErrTableNotInScope}
	}
	if !slices.Contains(tx.written, t) {
		tx.written = append(tx.written, t)
	}
	return nil
}

func tableNames(tables []Table) []string {
	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = string(t)
	}
	return out
}
