package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sovereign/internal/batch"
	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/logic"
	"github.com/roach88/sovereign/internal/store"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp), buf.String())
	return resp
}

func TestOutputFormatter_JSON(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Success(BatchResult{IDs: []string{"d-1"}}))

		assert.JSONEq(t, `{"status":"ok","data":{"ids":["d-1"]}}`, buf.String())
	})

	t.Run("error without details", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Error(CodeNotFound, "task not found", nil))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeNotFound, resp.Error.Code)
		assert.Equal(t, "task not found", resp.Error.Message)
		assert.Nil(t, resp.Error.Details)
		assert.Nil(t, resp.Data)
	})

	t.Run("error with details", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Error(CodeValidation, "invalid payload", map[string]string{"field": "burnout_threshold"}))

		resp := decodeResponse(t, buf)
		require.NotNil(t, resp.Error)
		assert.Equal(t, map[string]any{"field": "burnout_threshold"}, resp.Error.Details)
	})
}

func TestOutputFormatter_Text(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		write   func(f *OutputFormatter) error
		want    []string
		notWant []string
	}{
		{
			name:  "success prints data",
			write: func(f *OutputFormatter) error { return f.Success("Seeded 5 nodes") },
			want:  []string{"Seeded 5 nodes\n"},
		},
		{
			name:    "emit prints text, not data",
			write:   func(f *OutputFormatter) error { return f.Emit(map[string]int{"tasks": 3}, "3 tasks") },
			want:    []string{"3 tasks\n"},
			notWant: []string{"map["},
		},
		{
			name:    "error hides details",
			write:   func(f *OutputFormatter) error { return f.Error(CodeTransition, "done -> pending", "task-1") },
			want:    []string{"Error [E003]: done -> pending"},
			notWant: []string{"Details:"},
		},
		{
			name:    "verbose error shows details",
			verbose: true,
			write:   func(f *OutputFormatter) error { return f.Error(CodeTransition, "done -> pending", "task-1") },
			want:    []string{"Error [E003]", "Details: task-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}
			require.NoError(t, tt.write(f))
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}

	quiet := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag}
	quiet.VerboseLog("opening %s", "ledger.db")
	assert.Empty(t, diag.String())

	loud := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}
	loud.VerboseLog("opening %s", "ledger.db")
	assert.Equal(t, "opening ledger.db\n", diag.String())
	assert.Empty(t, out.String())

	noDiag := &OutputFormatter{Format: "text", Writer: out, Verbose: true}
	assert.Same(t, out, noDiag.GetErrWriter())
}

func TestOutputFormatter_FailValidationDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	err := fmt.Errorf("commit: %w", &ir.ValidationError{Entity: "decisions[1]", Field: "title", Message: "is required"})
	require.NoError(t, f.Fail(err))

	resp := decodeResponse(t, buf)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeValidation, resp.Error.Code)
	assert.Equal(t, err.Error(), resp.Error.Message)
	assert.Equal(t, map[string]any{"entity": "decisions[1]", "field": "title"}, resp.Error.Details)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", &ir.ValidationError{Entity: "task", Message: "bad"}, CodeValidation},
		{"unsupported logic", fmt.Errorf("%w: 9", logic.ErrUnsupportedVersion), CodeValidation},
		{"missing task", fmt.Errorf("log: %w", batch.ErrTaskNotFound), CodeNotFound},
		{"missing row", store.ErrNotFound, CodeNotFound},
		{"transition", fmt.Errorf("%w: done -> active", batch.ErrInvalidTransition), CodeTransition},
		{"tx", &store.TxError{Op: "insert", Table: store.TableTasks, Err: errors.New("boom")}, CodeStorage},
		{"quota", store.ErrQuotaExceeded, CodeStorage},
		{"command", NewExitError(ExitCommandError, "bad flag"), CodeCommand},
		{"command wrapping validation", WrapExitError(ExitCommandError, "read", &ir.ValidationError{}), CodeCommand},
		{"other", errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("permission denied")
	err := WrapExitError(ExitCommandError, "failed to open backup", cause)

	assert.Equal(t, "failed to open backup: permission denied", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "bad flag", NewExitError(ExitCommandError, "bad flag").Error())

	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
