package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sovereign/internal/ledger"
)

// withLedger opens the configured ledger for the duration of fn.
func withLedger(opts *RootOptions, fn func(l *ledger.Ledger) error) error {
	l, err := opts.openLedger()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := l.Close(); cerr != nil {
			opts.Logger.Error("close ledger", "error", cerr)
		}
	}()
	return fn(l)
}

// exactArgs is cobra.ExactArgs reported as a command error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return NewExitError(ExitCommandError, fmt.Sprintf("accepts %d arg(s), received %d", n, len(args)))
		}
		return nil
	}
}
