// Package harness runs ledger scenarios written in YAML and compares their
// traces against golden files.
//
// # Scenario Format
//
//	name: weekly_review
//	description: "What this scenario validates"
//	start: 1704067200000        # epoch ms, optional
//	steps:
//	  - seed: true
//	  - advance: 3600000
//	  - decide:
//	      - { title: "Ship pricing page", decision: do, priority: 1 }
//	  - log:
//	      - { task: "Ship pricing page", role: founder, status: completed }
//	  - status: { task: "Ship pricing page", to: active }
//	    expect_error: "invalid task status transition"
//	  - logic: { schema_version: 2, weights: { do: 5 }, burnout_threshold: 20 }
//	assertions:
//	  - type: count
//	    table: tasks
//	    where: { status: pending }
//	    count: 3
//	  - type: task_status
//	    task: "Ship pricing page"
//	    status: done
//	  - type: stats
//	    expect: { execution_rate: 50, overloaded: true }
//
// Tasks are referenced by title; a reference matching no title is used as
// a task id.
//
// # Assertion Types
//
//   - count: number of rows in a table, optionally filtered by indexed columns
//   - task_status: the final status of one task
//   - stats: subset match against the final metrics report
//
// # Deterministic Testing
//
// Each scenario runs against a fresh in-memory database with a manual clock
// and sequential ids ("id-1", "id-2", ...), so traces are identical across
// runs and can be compared with golden files:
//
//	go test ./internal/harness -update
package harness
