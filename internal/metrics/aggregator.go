package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/sovereign/internal/cache"
	"github.com/roach88/sovereign/internal/ir"
	"github.com/roach88/sovereign/internal/logic"
	"github.com/roach88/sovereign/internal/reactive"
	"github.com/roach88/sovereign/internal/store"
)

// DefaultTTL is how long snapshot reads are served from cache.
const DefaultTTL = 5 * time.Second

// Report is Stats plus the figures that depend on the active logic config.
// WindowDecisions counts decisions over the logic's week_days span and
// leaves the fixed seven-day figures in Stats alone.
type Report struct {
	Stats
	WindowDays       int  `json:"window_days"`
	WindowDecisions  int  `json:"window_decisions"`
	BurnoutThreshold int  `json:"burnout_threshold"`
	Overloaded       bool `json:"overloaded"`
}

// Aggregator loads snapshots through the cache and computes reports.
type Aggregator struct {
	store  *store.Store
	cache  *cache.Cache
	hub    *reactive.Hub
	clock  ir.Clock
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTTL sets the cache TTL for snapshot reads.
func WithTTL(d time.Duration) Option {
	return func(a *Aggregator) { a.ttl = d }
}

// WithLogger sets the aggregator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an aggregator. Time is read from the store's clock.
func NewAggregator(s *store.Store, c *cache.Cache, hub *reactive.Hub, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:  s,
		cache:  c,
		hub:    hub,
		clock:  s.Clock(),
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tables are the tables a report depends on.
var Tables = []store.Table{store.TableDecisions, store.TableTasks, store.TableActionLogs, store.TableLogic}

// Snapshot loads decisions, tasks and action logs, each via the cache.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	decisions, err := cache.Query(ctx, a.cache, store.TableDecisions.CacheKey("all"), a.ttl,
		func(ctx context.Context) ([]ir.DecisionEvent, error) {
			return a.store.ListDecisions(ctx, store.Query{})
		})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot decisions: %w", err)
	}
	tasks, err := cache.Query(ctx, a.cache, store.TableTasks.CacheKey("all"), a.ttl,
		func(ctx context.Context) ([]ir.Task, error) { return a.store.ListTasks(ctx, store.Query{}) })
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot tasks: %w", err)
	}
	logs, err := cache.Query(ctx, a.cache, store.TableActionLogs.CacheKey("all"), a.ttl,
		func(ctx context.Context) ([]ir.ActionLog, error) { return a.store.ListActionLogs(ctx, store.Query{}) })
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot action logs: %w", err)
	}
	return Snapshot{Decisions: decisions, Tasks: tasks, ActionLogs: logs}, nil
}

// Stats recomputes the report from a fresh snapshot.
func (a *Aggregator) Stats(ctx context.Context) (Report, error) {
	snap, err := a.Snapshot(ctx)
	if err != nil {
		return Report{}, err
	}
	settings, err := cache.Query(ctx, a.cache, store.TableLogic.CacheKey("active"), a.ttl,
		func(ctx context.Context) (logic.Settings, error) { return logic.Active(ctx, a.store) })
	if err != nil {
		return Report{}, fmt.Errorf("load logic: %w", err)
	}

	now := a.clock.NowMillis()
	stats := Compute(snap, now)
	return Report{
		Stats:            stats,
		WindowDays:       settings.WeekDays,
		WindowDecisions:  DecisionsWithin(snap.Decisions, now, settings.WeekDays),
		BurnoutThreshold: settings.BurnoutThreshold,
		Overloaded:       stats.BurnoutScore >= settings.BurnoutThreshold,
	}, nil
}

// Watch delivers a report now and again whenever the underlying tables
// change and the report differs from the last one delivered.
func (a *Aggregator) Watch(onChange func(Report, error)) *reactive.Subscription {
	return reactive.Watch(a.hub, Tables, func(ctx context.Context) (Report, error) {
		r, err := a.Stats(ctx)
		if err == nil {
			// ComputedAt changes every run; compare on the figures only.
			r.ComputedAt = 0
		}
		return r, err
	}, onChange)
}
