package reactive

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/store"
	"github.com/roach88/sovereign/internal/telemetry"
	"github.com/roach88/sovereign/internal/testutil"
)

const waitFor = 2 * time.Second

// recorder collects callback results for assertions from the test goroutine.
type recorder[T any] struct {
	mu     sync.Mutex
	values []T
	errs   []error
	signal chan struct{}
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{signal: make(chan struct{}, 64)}
}

func (r *recorder[T]) onChange(v T, err error) {
	r.mu.Lock()
	if err != nil {
		r.errs = append(r.errs, err)
	} else {
		r.values = append(r.values, v)
	}
	r.mu.Unlock()
	r.signal <- struct{}{}
}

func (r *recorder[T]) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.signal:
	case <-time.After(waitFor):
		t.Fatal("timeout waiting for callback")
	}
}

func (r *recorder[T]) quiet(t *testing.T) {
	t.Helper()
	select {
	case <-r.signal:
		t.Fatal("unexpected callback")
	case <-time.After(50 * time.Millisecond):
	}
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"),
		store.WithClock(testutil.NewManualClock(1)),
		store.WithLogger(telemetry.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHub_PublishMatchesTables(t *testing.T) {
	h := NewHub(WithLogger(telemetry.Discard()))
	tasks := h.listen([]store.Table{store.TableTasks})
	nodes := h.listen([]store.Table{store.TableNodes})

	h.Publish(store.TableTasks, store.TableActionLogs)

	select {
	case <-tasks.ch:
	case <-time.After(waitFor):
		t.Fatal("tasks listener not signalled")
	}
	select {
	case <-nodes.ch:
		t.Fatal("nodes listener signalled for unrelated tables")
	default:
	}
}

func TestHub_PublishCoalesces(t *testing.T) {
	h := NewHub(WithLogger(telemetry.Discard()))
	l := h.listen([]store.Table{store.TableTasks})

	for range 10 {
		h.Publish(store.TableTasks)
	}
	assert.Len(t, l.ch, 1)
}

func TestHub_NotifyMetric(t *testing.T) {
	reader, provider := testutil.NewMeterReader()
	inst, err := telemetry.NewInstruments(provider.Meter(telemetry.MeterName))
	require.NoError(t, err)

	h := NewHub(WithLogger(telemetry.Discard()), WithInstruments(inst))
	h.listen([]store.Table{store.TableTasks})
	h.listen([]store.Table{store.TableTasks, store.TableNodes})
	h.Publish(store.TableTasks)

	assert.Equal(t, int64(2), testutil.CounterValue(t, reader, "sovereign.reactive.notifications"))
}

func TestWatch_DeliversInitialAndChangedResults(t *testing.T) {
	s := newTestStore(t)
	h := NewHub(WithLogger(telemetry.Discard()))
	h.Attach(s)
	ctx := t.Context()

	rec := newRecorder[int]()
	sub := Watch(h, []store.Table{store.TableTasks}, func(ctx context.Context) (int, error) {
		return s.Count(ctx, store.TableTasks)
	}, rec.onChange)
	defer sub.Unsubscribe()

	rec.wait(t)

	_, err := s.InsertTask(ctx, ir.Task{Title: "a", Status: ir.TaskPending})
	require.NoError(t, err)
	rec.wait(t)

	// A write to another table does not re-run the query.
	_, err = s.InsertNode(ctx, ir.Node{Kind: ir.NodeOrg, Label: "x"})
	require.NoError(t, err)
	rec.quiet(t)

	assert.Equal(t, []int{0, 1}, rec.snapshot())
}

func TestWatch_SuppressesEqualResults(t *testing.T) {
	h := NewHub(WithLogger(telemetry.Discard()))
	rec := newRecorder[[]string]()

	sub := Watch(h, []store.Table{store.TableDecisions}, func(context.Context) ([]string, error) {
		return []string{"same"}, nil
	}, rec.onChange)
	defer sub.Unsubscribe()
	rec.wait(t)

	h.Publish(store.TableDecisions)
	rec.quiet(t)
	assert.Len(t, rec.snapshot(), 1)
}

func TestWatch_DeliversErrors(t *testing.T) {
	h := NewHub(WithLogger(telemetry.Discard()))
	rec := newRecorder[int]()
	boom := errors.New("boom")
	var fail atomic.Bool
	fail.Store(true)

	sub := Watch(h, []store.Table{store.TableTasks}, func(context.Context) (int, error) {
		if fail.Load() {
			return 0, boom
		}
		return 7, nil
	}, rec.onChange)
	defer sub.Unsubscribe()
	rec.wait(t)

	fail.Store(false)
	h.Publish(store.TableTasks)
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], boom)
	assert.Equal(t, []int{7}, rec.values)
}

func TestUnsubscribe_StopsCallbacks(t *testing.T) {
	h := NewHub(WithLogger(telemetry.Discard()))
	rec := newRecorder[int]()
	var n atomic.Int64

	sub := Watch(h, []store.Table{store.TableTasks}, func(context.Context) (int, error) {
		return int(n.Add(1)), nil
	}, rec.onChange)
	rec.wait(t)

	sub.Unsubscribe()
	sub.Unsubscribe()

	select {
	case <-sub.Done():
	case <-time.After(waitFor):
		t.Fatal("subscription goroutine did not exit")
	}
	assert.Zero(t, h.ListenerCount())

	h.Publish(store.TableTasks)
	rec.quiet(t)
	assert.Equal(t, []int{1}, rec.snapshot())
}

func TestUnsubscribe_FromCallback(t *testing.T) {
	h := NewHub(WithLogger(telemetry.Discard()))
	var sub *Subscription
	ready := make(chan struct{})
	called := make(chan struct{}, 4)

	sub = Watch(h, []store.Table{store.TableTasks}, func(context.Context) (int, error) {
		return 1, nil
	}, func(int, error) {
		<-ready
		sub.Unsubscribe()
		called <- struct{}{}
	})
	close(ready)

	select {
	case <-sub.Done():
	case <-time.After(waitFor):
		t.Fatal("subscription goroutine did not exit")
	}
	assert.Len(t, called, 1)
}

func TestUnsubscribe_WaitsForCommittedDelivery(t *testing.T) {
	h := NewHub(WithLogger(telemetry.Discard()))
	var n atomic.Int64
	var log []string
	var logMu sync.Mutex
	record := func(s string) {
		logMu.Lock()
		log = append(log, s)
		logMu.Unlock()
	}

	delivered := make(chan struct{}, 4)
	sub := Watch(h, []store.Table{store.TableTasks}, func(context.Context) (int, error) {
		return int(n.Add(1)), nil
	}, func(v int, _ error) {
		if v > 1 {
			record("callback")
		}
		delivered <- struct{}{}
	})
	<-delivered

	gate := make(chan struct{})
	passed := make(chan struct{})
	sub.cbMu.Lock()
	sub.committed = func() {
		close(passed)
		<-gate
	}
	sub.cbMu.Unlock()

	h.Publish(store.TableTasks)
	select {
	case <-passed:
	case <-time.After(waitFor):
		t.Fatal("delivery never passed its closed check")
	}

	unsubscribed := make(chan struct{})
	go func() {
		sub.Unsubscribe()
		record("unsubscribed")
		close(unsubscribed)
	}()

	select {
	case <-unsubscribed:
		t.Fatal("Unsubscribe returned while a committed delivery was pending")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate)

	select {
	case <-unsubscribed:
	case <-time.After(waitFor):
		t.Fatal("Unsubscribe did not return")
	}
	logMu.Lock()
	defer logMu.Unlock()
	assert.Equal(t, []string{"callback", "unsubscribed"}, log)
}

func TestDebounce(t *testing.T) {
	var n atomic.Int64
	d := Debounce(20*time.Millisecond, func() { n.Add(1) })

	for range 5 {
		d.Call()
	}
	require.Eventually(t, func() bool { return n.Load() == 1 }, waitFor, 5*time.Millisecond)

	d.Call()
	assert.True(t, d.Flush())
	assert.False(t, d.Flush())
	assert.Equal(t, int64(2), n.Load())

	d.Call()
	d.Stop()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int64(2), n.Load())
}

func TestDebounce_StopWaitsForRunningCall(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var n atomic.Int64
	d := Debounce(time.Millisecond, func() {
		if n.Add(1) == 1 {
			close(started)
		}
		<-release
	})

	d.Call()
	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("debounced call never ran")
	}

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while the call was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("Stop did not return")
	}

	d.Call()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), n.Load())
}

func TestThrottle(t *testing.T) {
	var n int
	th := Throttle(time.Hour, func() { n++ })

	assert.True(t, th.Call())
	assert.False(t, th.Call())
	assert.Equal(t, 1, n)
}
