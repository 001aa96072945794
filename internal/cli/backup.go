package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sovereign/internal/ledger"
	"github.com/roach88/sovereign/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Out string
}

// ExportResult is reported when the document is written to a file.
type ExportResult struct {
	Path   string              `json:"path"`
	Digest string              `json:"digest"`
	Rows   map[store.Table]int `json:"rows"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole ledger as a backup document",
		Long: `Write every table as one versioned JSON backup document.

Without --out the document is written to stdout, whatever --format says.
With --out it is written to the file and a summary with the document
digest is printed.

Examples:
  sovereign export > backup.json
  sovereign export --out backup.json --format json`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(rootOpts, func(l *ledger.Ledger) error {
				return runExport(opts, l, cmd)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the document to this file")

	return cmd
}

func runExport(opts *ExportOptions, l *ledger.Ledger, cmd *cobra.Command) error {
	opts.formatter(cmd).VerboseLog("exporting %s", opts.Config.DBPath)
	snap, err := l.Backup().Export(cmd.Context())
	if err != nil {
		return err
	}
	if opts.Out == "" {
		_, err := snap.WriteTo(cmd.OutOrStdout())
		return err
	}

	f, err := os.Create(opts.Out)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create output file", err)
	}
	if _, err := snap.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write backup: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	digest, err := snap.Digest()
	if err != nil {
		return err
	}
	res := ExportResult{Path: opts.Out, Digest: digest, Rows: snap.Count()}
	text := fmt.Sprintf("Exported %s to %s\ndigest: %s", formatRows(res.Rows), opts.Out, digest)
	return opts.formatter(cmd).Emit(res, text)
}

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Yes bool
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the ledger with a backup document",
		Long: `Validate a backup document and replace every table with its contents.

The import is all or nothing: an invalid document or a failed insert
leaves the ledger untouched. Because it discards the current data it
requires --yes.

Examples:
  sovereign import backup.json --yes`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return NewExitError(ExitCommandError, "import replaces all ledger data; pass --yes to confirm")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open backup", err)
			}
			defer f.Close()

			opts.formatter(cmd).VerboseLog("importing %s into %s", args[0], opts.Config.DBPath)
			return withLedger(rootOpts, func(l *ledger.Ledger) error {
				res, err := l.Backup().Import(cmd.Context(), f)
				if err != nil {
					return err
				}
				l.Reset()
				text := fmt.Sprintf("Imported %s\ndigest: %s", formatRows(res.Rows), res.Digest)
				return opts.formatter(cmd).Emit(res, text)
			})
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "confirm replacing the ledger")

	return cmd
}

// formatRows renders per-table counts in table order, skipping empty ones.
func formatRows(rows map[store.Table]int) string {
	tables := make([]string, 0, len(rows))
	total := 0
	for t, n := range rows {
		total += n
		if n > 0 {
			tables = append(tables, fmt.Sprintf("%s=%d", t, n))
		}
	}
	sort.Strings(tables)
	if len(tables) == 0 {
		return "0 rows"
	}
	return fmt.Sprintf("%d rows (%s)", total, strings.Join(tables, ", "))
}
