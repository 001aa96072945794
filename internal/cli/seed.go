package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sovereign/internal/ledger"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the starter graph into an empty ledger",
		Long: `Install the starter nodes, motions, default logic and tasks.

Seeding only happens when the ledger has no nodes; running it again
reports that nothing was written.

Examples:
  sovereign seed
  sovereign seed --db ./ledger.db --format json`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(rootOpts, func(l *ledger.Ledger) error {
				res, err := l.Seed(cmd.Context())
				if err != nil {
					return err
				}
				text := "Ledger already has data; nothing seeded."
				if res.Seeded {
					text = fmt.Sprintf("Seeded %d nodes, %d motions, %d logic config, %d tasks.",
						res.Nodes, res.Motions, res.Logic, res.Tasks)
				}
				return rootOpts.formatter(cmd).Emit(res, text)
			})
		},
	}
}
