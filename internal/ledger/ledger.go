// Package ledger wires the store, cache, reactive hub and the services
// built on them into one process-wide handle.
//
// Open one Ledger per database file and share it. Writes made through any of
// its services invalidate the cache for the tables they touched and then
// notify subscribers, in that order, so a subscriber re-running a cached
// read always sees the committed rows.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/sovereign/internal/backup"
	"github.com/roach88/sovereign/internal/batch"
	"github.com/roach88/sovereign/internal/cache"
	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/logic"
	"github.com/roach88/sovereign/internal/metrics"
	"github.com/roach88/sovereign/internal/reactive"
	"github.com/roach88/sovereign/internal/seed"
	"github.com/roach88/sovereign/internal/store"
	"github.com/roach88/sovereign/internal/telemetry"
)

// DefaultCacheTTL applies when Options.CacheTTL is zero.
const DefaultCacheTTL = 5 * time.Second

// Options configures Open. Only Path is required.
type Options struct {
	Path        string
	CacheTTL    time.Duration
	Logger      *slog.Logger
	Instruments *telemetry.Instruments

	// Clock and IDs replace the wall clock and UUIDv7 ids. Tests only.
	Clock ir.Clock
	IDs   ir.IDGenerator
}

// Ledger is an open ledger and its services.
type Ledger struct {
	store   *store.Store
	cache   *cache.Cache
	hub     *reactive.Hub
	batch   *batch.Processor
	backup  *backup.Service
	metrics *metrics.Aggregator
	ttl     time.Duration
	logger  *slog.Logger

	mu          sync.Mutex
	subs        []*reactive.Subscription
	closed      bool
	dataVersion int64
}

// Open opens the database at opts.Path and starts the ledger's services.
func Open(opts Options) (*Ledger, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("open ledger: no database path")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Instruments == nil {
		opts.Instruments = telemetry.Default()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}

	storeOpts := []store.Option{
		store.WithLogger(opts.Logger.With("component", "store")),
		store.WithInstruments(opts.Instruments),
	}
	if opts.Clock != nil {
		storeOpts = append(storeOpts, store.WithClock(opts.Clock))
	}
	if opts.IDs != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDs))
	}
	s, err := store.Open(opts.Path, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	c := cache.New(s.Clock(),
		cache.WithLogger(opts.Logger.With("component", "cache")),
		cache.WithInstruments(opts.Instruments))
	hub := reactive.NewHub(
		reactive.WithLogger(opts.Logger.With("component", "reactive")),
		reactive.WithInstruments(opts.Instruments))

	// Invalidate before publishing: subscribers re-query on notify.
	s.OnCommit(func(tables []store.Table) {
		for _, t := range tables {
			c.Invalidate(t.CachePrefix())
		}
	})
	hub.Attach(s)

	l := &Ledger{
		store:  s,
		cache:  c,
		hub:    hub,
		batch:  batch.New(s, batch.WithLogger(opts.Logger.With("component", "batch"))),
		backup: backup.New(s, backup.WithLogger(opts.Logger.With("component", "backup")), backup.WithInstruments(opts.Instruments)),
		metrics: metrics.NewAggregator(s, c, hub,
			metrics.WithTTL(opts.CacheTTL),
			metrics.WithLogger(opts.Logger.With("component", "metrics"))),
		ttl:    opts.CacheTTL,
		logger: opts.Logger,
	}
	if l.dataVersion, err = s.DataVersion(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l.logger.Debug("ledger opened", "path", opts.Path, "cache_ttl", opts.CacheTTL)
	return l, nil
}

// Close cancels every subscription made through Subscribe and closes the
// database. Safe to call more than once.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	subs := l.subs
	l.subs = nil
	l.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return l.store.Close()
}

// Store returns the underlying store.
func (l *Ledger) Store() *store.Store { return l.store }

// Cache returns the query cache.
func (l *Ledger) Cache() *cache.Cache { return l.cache }

// Hub returns the change notification hub.
func (l *Ledger) Hub() *reactive.Hub { return l.hub }

// Batch returns the batch processor.
func (l *Ledger) Batch() *batch.Processor { return l.batch }

// Backup returns the export/import service.
func (l *Ledger) Backup() *backup.Service { return l.backup }

// Metrics returns the derived metrics aggregator.
func (l *Ledger) Metrics() *metrics.Aggregator { return l.metrics }

// Reset drops every cached read.
func (l *Ledger) Reset() int {
	n := l.cache.Invalidate("")
	l.logger.Debug("cache reset", "entries", n)
	return n
}

// Refresh picks up commits made to the database file by other processes.
// If SQLite's data_version moved since the last check, every cached read is
// dropped and all tables are published to subscribers. Expired cache
// entries are purged on every call. Reports whether anything external was
// committed.
func (l *Ledger) Refresh(ctx context.Context) (bool, error) {
	if n := l.cache.Purge(); n > 0 {
		l.logger.Debug("cache purged", "entries", n)
	}
	v, err := l.store.DataVersion(ctx)
	if err != nil {
		return false, fmt.Errorf("refresh: %w", err)
	}

	l.mu.Lock()
	changed := v != l.dataVersion
	l.dataVersion = v
	l.mu.Unlock()
	if !changed {
		return false, nil
	}

	l.Reset()
	l.hub.Publish(store.AllTables...)
	l.logger.Debug("external commit", "data_version", v)
	return true, nil
}

// cached serves a list read for table t through the cache.
func cached[T any](ctx context.Context, l *Ledger, t store.Table, q store.Query, fn func(context.Context, store.Query) ([]T, error)) ([]T, error) {
	return cache.Query(ctx, l.cache, t.CacheKey(q.Key()), l.ttl, func(ctx context.Context) ([]T, error) {
		return fn(ctx, q)
	})
}

// Tasks returns tasks matching q, cached until a write to tasks or the TTL.
func (l *Ledger) Tasks(ctx context.Context, q store.Query) ([]ir.Task, error) {
	return cached(ctx, l, store.TableTasks, q, l.store.ListTasks)
}

// Decisions returns decision events matching q through the cache.
func (l *Ledger) Decisions(ctx context.Context, q store.Query) ([]ir.DecisionEvent, error) {
	return cached(ctx, l, store.TableDecisions, q, l.store.ListDecisions)
}

// ActionLogs returns action logs matching q through the cache.
func (l *Ledger) ActionLogs(ctx context.Context, q store.Query) ([]ir.ActionLog, error) {
	return cached(ctx, l, store.TableActionLogs, q, l.store.ListActionLogs)
}

// Nodes returns nodes matching q through the cache.
func (l *Ledger) Nodes(ctx context.Context, q store.Query) ([]ir.Node, error) {
	return cached(ctx, l, store.TableNodes, q, l.store.ListNodes)
}

// Logic returns the active logic settings through the cache.
func (l *Ledger) Logic(ctx context.Context) (logic.Settings, error) {
	return cache.Query(ctx, l.cache, store.TableLogic.CacheKey("active"), l.ttl, func(ctx context.Context) (logic.Settings, error) {
		return logic.Active(ctx, l.store)
	})
}

// SetLogic validates payload and stores it as the active logic config.
func (l *Ledger) SetLogic(ctx context.Context, payload ir.Object) (logic.Settings, error) {
	_, settings, err := logic.Put(ctx, l.store, logic.DefaultID, payload)
	return settings, err
}

// Seed installs the starter graph if the ledger has no nodes.
func (l *Ledger) Seed(ctx context.Context) (seed.Result, error) {
	res, err := seed.Run(ctx, l.store)
	if err != nil {
		return res, err
	}
	l.logger.Info("seed", "seeded", res.Seeded, "nodes", res.Nodes, "tasks", res.Tasks)
	return res, nil
}

// Subscribe runs query now and whenever one of tables is written, passing
// changed results to onChange. The subscription ends on Unsubscribe or when
// the ledger is closed.
func Subscribe[T any](l *Ledger, tables []store.Table, query func(context.Context) (T, error), onChange func(T, error)) (*reactive.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("subscribe: ledger closed")
	}
	sub := reactive.Watch(l.hub, tables, query, onChange)
	l.subs = append(l.subs, sub)
	return sub, nil
}

// WatchStats subscribes to the metrics report.
func (l *Ledger) WatchStats(onChange func(metrics.Report, error)) (*reactive.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("watch stats: ledger closed")
	}
	sub := l.metrics.Watch(onChange)
	l.subs = append(l.subs, sub)
	return sub, nil
}
