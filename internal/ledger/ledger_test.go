package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sovereign/internal/batch"
	"github.com/roach88/sovereign/internal/cache"
	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/metrics"
	"github.com/roach88/sovereign/internal/store"
	"github.com/roach88/sovereign/internal/telemetry"
	"github.com/roach88/sovereign/internal/testutil"
)

const waitFor = 2 * time.Second

func openTestLedger(t *testing.T) (*Ledger, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock(1704067200000)
	l, err := Open(Options{
		Path:     filepath.Join(t.TempDir(), "ledger.db"),
		CacheTTL: time.Second,
		Logger:   telemetry.Discard(),
		Clock:    clock,
		IDs:      testutil.NewSequenceGenerator("row"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, clock
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Options{})
	require.Error(t, err)
}

func TestLedger_CachedReadsUntilWrite(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := t.Context()

	res, err := l.Seed(ctx)
	require.NoError(t, err)
	require.True(t, res.Seeded)

	tasks, err := l.Tasks(ctx, store.Query{})
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	_, err = l.Tasks(ctx, store.Query{})
	require.NoError(t, err)
	assert.Equal(t, cache.Stats{Hits: 1, Misses: 1, Entries: 1}, l.Cache().Stats())

	_, err = l.Batch().CommitDecisions(ctx, []batch.DecisionInput{{Title: "Hire", Decision: ir.DecisionDo}})
	require.NoError(t, err)

	tasks, err = l.Tasks(ctx, store.Query{})
	require.NoError(t, err)
	assert.Len(t, tasks, 4, "write to tasks must invalidate the cached list")
	assert.Equal(t, int64(2), l.Cache().Stats().Misses)
}

func TestLedger_CachedReadsExpire(t *testing.T) {
	l, clock := openTestLedger(t)
	ctx := t.Context()

	_, err := l.Nodes(ctx, store.Query{})
	require.NoError(t, err)
	clock.Advance(500)
	_, err = l.Nodes(ctx, store.Query{})
	require.NoError(t, err)
	clock.Advance(600)
	_, err = l.Nodes(ctx, store.Query{})
	require.NoError(t, err)

	stats := l.Cache().Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestLedger_DistinctQueriesCachedSeparately(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := t.Context()
	_, err := l.Seed(ctx)
	require.NoError(t, err)

	pending, err := l.Tasks(ctx, store.Query{Filters: []store.Filter{store.Eq("status", string(ir.TaskPending))}})
	require.NoError(t, err)
	all, err := l.Tasks(ctx, store.Query{})
	require.NoError(t, err)

	assert.Len(t, pending, 2)
	assert.Len(t, all, 3)
	assert.Equal(t, 2, l.Cache().Stats().Entries)
}

func TestLedger_ReadsOtherEntities(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := t.Context()
	_, err := l.Seed(ctx)
	require.NoError(t, err)

	ids, err := l.Batch().CommitDecisions(ctx, []batch.DecisionInput{{Title: "Pause ads", Decision: ir.DecisionStop}})
	require.NoError(t, err)

	decisions, err := l.Decisions(ctx, store.Query{})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, ids[0], decisions[0].ID)

	logs, err := l.ActionLogs(ctx, store.Query{})
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.NotNil(t, logs)
}

func TestLedger_Reset(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := t.Context()

	_, err := l.Tasks(ctx, store.Query{})
	require.NoError(t, err)
	_, err = l.Nodes(ctx, store.Query{})
	require.NoError(t, err)

	assert.Equal(t, 2, l.Reset())
	assert.Equal(t, 0, l.Cache().Stats().Entries)
}

func TestLedger_Logic(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := t.Context()

	settings, err := l.Logic(ctx)
	require.NoError(t, err)
	assert.Equal(t, 70, settings.BurnoutThreshold)

	_, err = l.SetLogic(ctx, ir.Object{
		"schema_version":    ir.Int(2),
		"weights":           ir.Object{"do": ir.Int(4)},
		"burnout_threshold": ir.Int(40),
	})
	require.NoError(t, err)

	settings, err = l.Logic(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, settings.BurnoutThreshold)
	assert.Equal(t, map[string]int{"do": 4}, settings.Weights)

	_, err = l.SetLogic(ctx, ir.Object{"schema_version": ir.Int(2), "weights": ir.Object{"do": ir.Int(400)}})
	var verr *ir.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSubscribe_DeliversAfterCommit(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := t.Context()

	counts := make(chan int, 8)
	query := func(ctx context.Context) (int, error) {
		tasks, err := l.Tasks(ctx, store.Query{Filters: []store.Filter{store.Eq("status", string(ir.TaskPending))}})
		return len(tasks), err
	}
	sub, err := Subscribe(l, []store.Table{store.TableTasks}, query, func(n int, err error) {
		assert.NoError(t, err)
		counts <- n
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Equal(t, 0, receive(t, counts))

	_, err = l.Batch().CommitDecisions(ctx, []batch.DecisionInput{
		{Title: "a", Decision: ir.DecisionDo},
		{Title: "b", Decision: ir.DecisionDelegate},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, receive(t, counts))
}

func TestWatchStats(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := t.Context()

	reports := make(chan metrics.Report, 8)
	sub, err := l.WatchStats(func(r metrics.Report, err error) {
		assert.NoError(t, err)
		reports <- r
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	assert.Equal(t, 0, receive(t, reports).PendingTasks)

	_, err = l.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, receive(t, reports).PendingTasks)
}

func TestClose_EndsSubscriptions(t *testing.T) {
	l, _ := openTestLedger(t)

	sub, err := Subscribe(l, []store.Table{store.TableNodes}, func(context.Context) (int, error) { return 1, nil }, func(int, error) {})
	require.NoError(t, err)

	require.NoError(t, l.Close())
	select {
	case <-sub.Done():
	case <-time.After(waitFor):
		t.Fatal("subscription still running after Close")
	}
	assert.Equal(t, 0, l.Hub().ListenerCount())

	_, err = Subscribe(l, []store.Table{store.TableNodes}, func(context.Context) (int, error) { return 1, nil }, func(int, error) {})
	assert.Error(t, err)
	assert.NoError(t, l.Close())
}

func receive[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("timeout waiting for callback")
	}
	var zero T
	return zero
}

func TestRefresh_SeesOtherProcessCommits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	open := func() *Ledger {
		l, err := Open(Options{Path: path, CacheTTL: time.Minute, Logger: telemetry.Discard()})
		require.NoError(t, err)
		t.Cleanup(func() { l.Close() })
		return l
	}
	reader, writer := open(), open()
	ctx := t.Context()

	changed, err := reader.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	counts := make(chan int, 8)
	sub, err := Subscribe(reader, []store.Table{store.TableTasks}, func(ctx context.Context) (int, error) {
		tasks, err := reader.Tasks(ctx, store.Query{})
		return len(tasks), err
	}, func(n int, err error) {
		assert.NoError(t, err)
		counts <- n
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	assert.Equal(t, 0, receive(t, counts))

	_, err = writer.Seed(ctx)
	require.NoError(t, err)

	// Still served from the reader's cache.
	tasks, err := reader.Tasks(ctx, store.Query{})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	changed, err = reader.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 3, receive(t, counts))

	changed, err = reader.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRefresh_PurgesExpiredEntries(t *testing.T) {
	l, clock := openTestLedger(t)
	ctx := t.Context()

	_, err := l.Nodes(ctx, store.Query{})
	require.NoError(t, err)
	require.Equal(t, 1, l.Cache().Stats().Entries)

	clock.Advance(2000)
	changed, err := l.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 0, l.Cache().Stats().Entries)
}
