package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sovereign/internal/batch"
	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/ledger"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	File    string
	Task    string
	Role    string
	Status  string
	Minutes int
	Note    string
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log work against existing tasks",
		Long: `Record one action log from flags, or a batch from a YAML or JSON file.

A completed action marks its task done. If any action names a task that
does not exist, the whole batch is rejected.

Examples:
  sovereign log --task <id> --role founder --status completed --minutes 45
  sovereign log --file actions.yaml`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := actionInputs(opts, cmd)
			if err != nil {
				return err
			}
			return withLedger(rootOpts, func(l *ledger.Ledger) error {
				ids, err := l.Batch().LogActions(cmd.Context(), inputs)
				if err != nil {
					return err
				}
				text := fmt.Sprintf("Logged %d action(s): %s", len(ids), strings.Join(ids, ", "))
				return opts.formatter(cmd).Emit(BatchResult{IDs: ids}, text)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML or JSON batch file (- for stdin)")
	cmd.Flags().StringVar(&opts.Task, "task", "", "task id")
	cmd.Flags().StringVar(&opts.Role, "role", "", "role of whoever did the work")
	cmd.Flags().StringVar(&opts.Status, "status", string(ir.ActionCompleted), "completed, delayed, needs_decision or in_progress")
	cmd.Flags().IntVar(&opts.Minutes, "minutes", 0, "time spent in minutes")
	cmd.Flags().StringVar(&opts.Note, "note", "", "free-form note")
	cmd.MarkFlagsMutuallyExclusive("file", "task")

	return cmd
}

func actionInputs(opts *LogOptions, cmd *cobra.Command) ([]batch.ActionInput, error) {
	if opts.File != "" {
		r, closeFn, err := openInput(opts.File, cmd)
		if err != nil {
			return nil, err
		}
		defer closeFn()
		inputs, err := batch.LoadActions(r)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read actions", err)
		}
		return inputs, nil
	}

	if opts.Task == "" {
		return nil, NewExitError(ExitCommandError, "either --task or --file is required")
	}
	in := batch.ActionInput{
		TaskID:    opts.Task,
		ActorRole: opts.Role,
		Status:    ir.ActionStatus(opts.Status),
		Note:      opts.Note,
	}
	if cmd.Flags().Changed("minutes") {
		m := opts.Minutes
		in.TimeSpentMin = &m
	}
	return []batch.ActionInput{in}, nil
}
