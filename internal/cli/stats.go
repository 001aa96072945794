package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sovereign/internal/ledger"
	"github.com/roach88/sovereign/internal/metrics"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show derived execution and burnout statistics",
		Long: `Compute the dashboard figures from the current ledger:
decisions this week, open tasks, execution rate and burnout score,
judged against the active logic config's burnout threshold.

Examples:
  sovereign stats
  sovereign stats --format json`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(rootOpts, func(l *ledger.Ledger) error {
				report, err := l.Metrics().Stats(cmd.Context())
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Emit(report, formatReport(report))
			})
		},
	}
}

func formatReport(r metrics.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Decisions this week: %d (%s/day)\n", r.ThisWeekDecisions, r.DecisionsPerDay)
	if r.WindowDays != metrics.WeekDays {
		fmt.Fprintf(&b, "Decisions, %d days:  %d\n", r.WindowDays, r.WindowDecisions)
	}
	fmt.Fprintf(&b, "Open tasks:          %d\n", r.PendingTasks)
	fmt.Fprintf(&b, "Execution rate:      %d%%\n", r.ExecutionRate)
	fmt.Fprintf(&b, "Burnout score:       %d / %d", r.BurnoutScore, r.BurnoutThreshold)
	if r.Overloaded {
		b.WriteString(" (overloaded)")
	}
	return b.String()
}
