package store

import (
	"fmt"
	"slices"
	"strings"
)

// Table names a ledger table. Transactions declare the tables they write.
type Table string

const (
	TableNodes        Table = "nodes"
	TableMotions      Table = "motions"
	TableDecisions    Table = "decisions"
	TableTasks        Table = "tasks"
	TableActionLogs   Table = "action_logs"
	TableProofs       Table = "proofs"
	TableLogic        Table = "logic"
	TableSyncMessages Table = "sync_messages"
)

// AllTables lists every table in dependency-free insertion order.
var AllTables = []Table{
	TableNodes,
	TableMotions,
	TableDecisions,
	TableTasks,
	TableActionLogs,
	TableProofs,
	TableLogic,
	TableSyncMessages,
}

// orderColumn is the creation timestamp column each table is ordered by.
var orderColumn = map[Table]string{
	TableNodes:        "created_at",
	TableMotions:      "created_at",
	TableDecisions:    "created_at",
	TableTasks:        "created_at",
	TableActionLogs:   "logged_at",
	TableProofs:       "created_at",
	TableLogic:        "updated_at",
	TableSyncMessages: "created_at",
}

// indexedColumns are the columns a Filter may reference. Filtering on
// anything else would force a table scan, so it is rejected.
var indexedColumns = map[Table][]string{
	TableNodes:        {"id", "kind", "tier", "created_at"},
	TableMotions:      {"id", "source_node_id", "target_node_id", "created_at"},
	TableDecisions:    {"id", "decision", "created_at"},
	TableTasks:        {"id", "status", "source_decision_id", "due_at", "created_at"},
	TableActionLogs:   {"id", "task_id", "action_status", "logged_at"},
	TableProofs:       {"id", "related_type", "related_id", "created_at"},
	TableLogic:        {"id", "updated_at"},
	TableSyncMessages: {"id", "type", "created_at"},
}

// Valid reports whether t is a known table.
func (t Table) Valid() bool {
	_, ok := orderColumn[t]
	return ok
}

// AppendOnly reports whether rows of t are never updated or deleted one
// at a time.
func (t Table) AppendOnly() bool {
	return t == TableDecisions || t == TableProofs
}

// OrderColumn returns the timestamp column t is ordered by.
func (t Table) OrderColumn() string {
	return orderColumn[t]
}

// CacheKey returns a cache key under t's namespace. Writes to t invalidate
// every key built this way.
func (t Table) CacheKey(parts ...string) string {
	return string(t) + ":" + strings.Join(parts, ":")
}

// CachePrefix is the prefix shared by every key from CacheKey.
func (t Table) CachePrefix() string {
	return string(t) + ":"
}

func checkColumn(t Table, column string) error {
	if !slices.Contains(indexedColumns[t], column) {
		return fmt.Errorf("%w: %s.%s", ErrNotIndexed, t, column)
	}
	return nil
}
