// Package store provides SQLite-backed durable storage for the ledger.
//
// The ledger holds eight tables:
//   - nodes, motions: the actor/asset graph
//   - decisions: append-only do/delegate/stop events
//   - tasks, action_logs: work items and the log of effort spent on them
//   - proofs: append-only evidence attached to decisions or tasks
//   - logic: versioned scoring configuration
//   - sync_messages: envelopes exchanged with peers
//
// # Transactions
//
// Every write runs inside Store.Transaction, which declares the tables it
// may write. Writing outside that scope fails with ErrTableNotInScope and
// rolls the whole unit back. Listeners registered with OnCommit learn which
// tables a committed transaction wrote; the cache and the reactive hub hang
// off this hook.
//
// # Deterministic Reads
//
// Range reads order by the table's timestamp column and break ties with
// id COLLATE BINARY, so equal data always lists in the same order. Filters
// are restricted to indexed columns (ErrNotIndexed otherwise).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - single connection: Transactions are serialized
package store
