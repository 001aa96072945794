package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/ledger"
	"github.com/roach88/sovereign/internal/logic"
)

// NewLogicCommand creates the logic command group.
func NewLogicCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logic",
		Short: "Show or replace the active logic config",
	}
	cmd.AddCommand(newLogicShowCommand(rootOpts))
	cmd.AddCommand(newLogicSetCommand(rootOpts))
	return cmd
}

func newLogicShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active logic settings",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(rootOpts, func(l *ledger.Ledger) error {
				settings, err := l.Logic(cmd.Context())
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Emit(settings, formatSettings(settings))
			})
		},
	}
}

func newLogicSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <file>",
		Short: "Validate a logic payload and make it active",
		Long: `Read a YAML or JSON logic payload, upgrade it if it is in the
older flat-weights format, validate it and store it as the active config.

Example payload:
  schema_version: 2
  weights: {do: 3, delegate: 2, stop: 1}
  burnout_threshold: 60
  week_days: 5

Examples:
  sovereign logic set logic.yaml
  cat logic.json | sovereign logic set -`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := openInput(args[0], cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			payload, err := decodeLogicPayload(r)
			if err != nil {
				return err
			}
			return withLedger(rootOpts, func(l *ledger.Ledger) error {
				settings, err := l.SetLogic(cmd.Context(), payload)
				if err != nil {
					return err
				}
				return rootOpts.formatter(cmd).Emit(settings, formatSettings(settings))
			})
		},
	}
}

// decodeLogicPayload reads one YAML (or JSON) mapping as an IR object.
func decodeLogicPayload(r io.Reader) (ir.Object, error) {
	var raw any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ir.ValidationError{Entity: "logic", Message: "empty payload"}
		}
		return nil, WrapExitError(ExitCommandError, "failed to parse logic payload", err)
	}
	v, err := ir.FromNative(raw)
	if err != nil {
		return nil, &ir.ValidationError{Entity: "logic", Message: err.Error()}
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, &ir.ValidationError{Entity: "logic", Message: "payload must be a mapping"}
	}
	return obj, nil
}

// readLogicFile decodes the payload stored at path.
func readLogicFile(path string) (ir.Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeLogicPayload(f)
}

func formatSettings(s logic.Settings) string {
	names := make([]string, 0, len(s.Weights))
	for k := range s.Weights {
		names = append(names, k)
	}
	sort.Strings(names)
	weights := make([]string, len(names))
	for i, k := range names {
		weights[i] = fmt.Sprintf("%s=%d", k, s.Weights[k])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Schema version:    %d\n", s.SchemaVersion)
	fmt.Fprintf(&b, "Weights:           %s\n", strings.Join(weights, ", "))
	fmt.Fprintf(&b, "Burnout threshold: %d\n", s.BurnoutThreshold)
	fmt.Fprintf(&b, "Week days:         %d", s.WeekDays)
	return b.String()
}
