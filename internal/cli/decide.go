package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sovereign/internal/batch"
	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/ledger"
)

// DecideOptions holds flags for the decide command.
type DecideOptions struct {
	*RootOptions
	File     string
	Title    string
	Context  string
	Decision string
	Priority int
	DueAt    int64
}

// BatchResult lists the ids a batch wrote, in input order.
type BatchResult struct {
	IDs []string `json:"ids"`
}

// NewDecideCommand creates the decide command.
func NewDecideCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecideOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Record decisions and the tasks they create",
		Long: `Record one decision from flags, or a batch from a YAML or JSON file.

Every decision except stop also creates a pending task. A batch is
written in one transaction: either every decision lands or none do.

Examples:
  sovereign decide --title "Hire ops lead" --decision delegate --priority 2
  sovereign decide --file decisions.yaml
  cat decisions.yaml | sovereign decide --file -`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := decisionInputs(opts, cmd)
			if err != nil {
				return err
			}
			return withLedger(rootOpts, func(l *ledger.Ledger) error {
				ids, err := l.Batch().CommitDecisions(cmd.Context(), inputs)
				if err != nil {
					return err
				}
				text := fmt.Sprintf("Recorded %d decision(s): %s", len(ids), strings.Join(ids, ", "))
				return opts.formatter(cmd).Emit(BatchResult{IDs: ids}, text)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML or JSON batch file (- for stdin)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "decision title")
	cmd.Flags().StringVar(&opts.Context, "context", "", "free-form context")
	cmd.Flags().StringVar(&opts.Decision, "decision", "", "do, delegate or stop")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0, "priority of the derived task")
	cmd.Flags().Int64Var(&opts.DueAt, "due", 0, "due time of the derived task (epoch ms)")
	cmd.MarkFlagsMutuallyExclusive("file", "title")

	return cmd
}

func decisionInputs(opts *DecideOptions, cmd *cobra.Command) ([]batch.DecisionInput, error) {
	if opts.File != "" {
		r, closeFn, err := openInput(opts.File, cmd)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		inputs, err := batch.LoadDecisions(r)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read decisions", err)
		}
		return inputs, nil
	}

	if opts.Title == "" {
		return nil, NewExitError(ExitCommandError, "either --title or --file is required")
	}
	in := batch.DecisionInput{
		Title:    opts.Title,
		Context:  opts.Context,
		Decision: ir.Decision(opts.Decision),
		Priority: opts.Priority,
	}
	if cmd.Flags().Changed("due") {
		due := opts.DueAt
		in.DueAt = &due
	}
	return []batch.DecisionInput{in}, nil
}

// openInput opens path for reading; "-" reads the command's stdin.
func openInput(path string, cmd *cobra.Command) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open input", err)
	}
	return f, func() { f.Close() }, nil
}
