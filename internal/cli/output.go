package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/sovereign/internal/batch"
	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/logic"
	"github.com/roach88/sovereign/internal/store"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // rejected input or a failed ledger write
	ExitCommandError = 2 // bad flags, unreadable files, database won't open
)

// Error codes carried in JSON error responses.
const (
	CodeValidation = "E001"
	CodeNotFound   = "E002"
	CodeTransition = "E003"
	CodeStorage    = "E004"
	CodeCommand    = "E100"
	CodeInternal   = "E999"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error // optional cause
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code and message to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the first ExitError in err's chain, or
// ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode maps an error onto the code reported in JSON responses.
// Command errors win over whatever they wrap.
func ErrorCode(err error) string {
	var (
		exitErr *ExitError
		valErr  *ir.ValidationError
		txErr   *store.TxError
	)
	switch {
	case errors.As(err, &exitErr) && exitErr.Code == ExitCommandError:
		return CodeCommand
	case errors.As(err, &valErr), errors.Is(err, logic.ErrUnsupportedVersion):
		return CodeValidation
	case errors.Is(err, batch.ErrTaskNotFound), errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, batch.ErrInvalidTransition):
		return CodeTransition
	case errors.As(err, &txErr), errors.Is(err, store.ErrQuotaExceeded):
		return CodeStorage
	}
	return CodeInternal
}

// OutputFormatter renders command results as text or JSON responses.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; falls back to Writer
	Verbose   bool
}

// CLIResponse is the envelope of every JSON response.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a JSON response.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data as an ok response, or prints it for humans.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Emit is Success with a separate rendering for text mode.
func (f *OutputFormatter) Emit(data any, text string) error {
	if f.Format == "json" {
		return f.Success(data)
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Error writes an error response. Text mode shows details only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	return json.NewEncoder(f.Writer).Encode(resp)
}

// Fail reports err in the configured format. Validation errors carry their
// field as details.
func (f *OutputFormatter) Fail(err error) error {
	var details any
	var valErr *ir.ValidationError
	if errors.As(err, &valErr) {
		details = map[string]string{"entity": valErr.Entity, "field": valErr.Field}
	}
	return f.Error(ErrorCode(err), err.Error(), details)
}

// VerboseLog prints to the diagnostic writer when verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter, or Writer when none is set.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
