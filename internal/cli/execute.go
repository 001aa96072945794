package cli

import (
	"context"
	"io"
)

// Execute runs the CLI with args and returns the process exit code. Errors
// are rendered in the selected format: JSON responses go to stdout so
// scripted callers read one stream, text goes to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	opts.shutdownTelemetry(ctx)
	if err == nil {
		return ExitSuccess
	}

	f := &OutputFormatter{Format: opts.Format, Writer: stderr, Verbose: opts.Verbose}
	if opts.Format == "json" {
		f.Writer = stdout
	}
	_ = f.Fail(err)
	return GetExitCode(err)
}
