package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/telemetry"
	"github.com/roach88/sovereign/internal/testutil"
)

// testEpoch is 2024-01-01T00:00:00Z in epoch milliseconds.
const testEpoch int64 = 1704067200000

// createTestStore opens a fresh store in a temp dir with deterministic ids
// and a manual clock.
func createTestStore(t *testing.T, opts ...Option) (*Store, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock(testEpoch)
	base := []Option{
		WithIDGenerator(testutil.NewSequenceGenerator("row")),
		WithClock(clock),
		WithLogger(telemetry.Discard()),
	}
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), append(base, opts...)...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func testTask(title string, status ir.TaskStatus) ir.Task {
	return ir.Task{Title: title, Status: status, Priority: 1}
}
