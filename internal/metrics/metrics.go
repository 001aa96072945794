// Package metrics derives dashboard statistics from ledger contents.
//
// Compute is a pure function of a Snapshot and the current time. Results
// are recomputed on demand and never stored.
package metrics

import (
	"fmt"
	"math"

	"github.com/roach88/sovereign/internal/ir"
)

// WeekDays is the trailing span, in days, counted as "this week".
const WeekDays = 7

// Snapshot is the slice of ledger state the statistics depend on.
type Snapshot struct {
	Decisions  []ir.DecisionEvent
	Tasks      []ir.Task
	ActionLogs []ir.ActionLog
}

// Stats are the derived dashboard figures.
type Stats struct {
	ThisWeekDecisions int    `json:"this_week_decisions"`
	PendingTasks      int    `json:"pending_tasks"`
	ExecutionRate     int    `json:"execution_rate"`
	BurnoutScore      int    `json:"burnout_score"`
	DecisionsPerDay   string `json:"decisions_per_day"`
	ComputedAt        int64  `json:"computed_at"`
}

// Compute derives Stats from snap at time now (epoch ms).
//
//   - ThisWeekDecisions counts decisions created in (now-7d, now].
//   - PendingTasks counts pending and active tasks.
//   - ExecutionRate is completed logs over all logs, as a rounded percent.
//   - BurnoutScore is pending*5 + delayed*10 - completed*2, clamped to 0..100.
//   - DecisionsPerDay is ThisWeekDecisions/7 with one decimal.
func Compute(snap Snapshot, now int64) Stats {
	week := DecisionsWithin(snap.Decisions, now, WeekDays)

	pending := 0
	for _, t := range snap.Tasks {
		if t.Status.Open() {
			pending++
		}
	}

	var completed, delayed int
	for _, a := range snap.ActionLogs {
		switch a.ActionStatus {
		case ir.ActionCompleted:
			completed++
		case ir.ActionDelayed:
			delayed++
		}
	}

	rate := 0
	if total := len(snap.ActionLogs); total > 0 {
		rate = int(math.Round(100 * float64(completed) / float64(total)))
	}

	return Stats{
		ThisWeekDecisions: week,
		PendingTasks:      pending,
		ExecutionRate:     rate,
		BurnoutScore:      clamp(pending*5+delayed*10-completed*2, 0, 100),
		DecisionsPerDay:   fmt.Sprintf("%.1f", float64(week)/WeekDays),
		ComputedAt:        now,
	}
}

// DecisionsWithin counts decisions created in (now-days*24h, now].
func DecisionsWithin(decisions []ir.DecisionEvent, now int64, days int) int {
	from := now - int64(days)*ir.Day
	n := 0
	for _, d := range decisions {
		if d.CreatedAt > from && d.CreatedAt <= now {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
