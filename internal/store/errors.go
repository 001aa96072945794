package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned by point lookups for a missing id.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded means the device refused a write for lack of space.
	// Fatal for the operation; the transaction has been rolled back.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrTableNotInScope is returned when a transaction writes a table it
	// did not declare.
	ErrTableNotInScope = errors.New("table not in transaction scope")

	// ErrNotIndexed is returned for filters on unindexed columns.
	ErrNotIndexed = errors.New("column is not indexed")

	// ErrUnknownTable is returned for table names outside the schema.
	ErrUnknownTable = errors.New("unknown table")

	// ErrAppendOnly is returned when deleting a single decision or proof.
	ErrAppendOnly = errors.New("table is append-only")
)

// TxError wraps a statement failure inside a transaction with the operation
// and table that failed. The whole transaction is rolled back when one is
// returned from a unit of work.
type TxError struct {
	Op    string
	Table Table
	Err   error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// IsConstraint reports whether err is a SQLite constraint violation
// (duplicate primary key, NOT NULL).
func IsConstraint(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

// classify maps driver errors onto the ledger taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrFull {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

func txErr(op string, t Table, err error) error {
	return &TxError{Op: op, Table: t, Err: classify(err)}
}
