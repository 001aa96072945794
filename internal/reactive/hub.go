// Package reactive turns committed ledger writes into re-run queries.
//
// A Hub keeps one observer list per table. The store's commit hook publishes
// the tables a transaction wrote; every Watch subscribed to one of them
// re-runs its query and hands the result to its callback when it changed.
package reactive

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/sovereign/internal/store"
	"github.com/roach88/sovereign/internal/telemetry"
)

// listener is one registration on the hub. Its channel has room for a
// single pending signal, so a burst of publishes collapses into one re-run.
type listener struct {
	id     int
	tables []store.Table
	ch     chan struct{}
}

// Hub is an in-process observer registry keyed by table.
// Safe for concurrent use.
type Hub struct {
	logger *slog.Logger
	inst   *telemetry.Instruments

	mu        sync.RWMutex
	listeners map[int]*listener
	nextID    int
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub's logger.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithInstruments sets the metric instruments.
func WithInstruments(m *telemetry.Instruments) HubOption {
	return func(h *Hub) { h.inst = m }
}

// NewHub creates a hub with no listeners.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		logger:    slog.Default(),
		listeners: make(map[int]*listener),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.inst == nil {
		h.inst = telemetry.Default()
	}
	return h
}

// Attach subscribes the hub to s's commit notifications.
func (h *Hub) Attach(s *store.Store) {
	s.OnCommit(func(tables []store.Table) { h.Publish(tables...) })
}

func (h *Hub) listen(tables []store.Table) *listener {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	l := &listener{
		id:     h.nextID,
		tables: slices.Clone(tables),
		ch:     make(chan struct{}, 1),
	}
	h.listeners[l.id] = l
	return l
}

func (h *Hub) remove(l *listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, l.id)
}

// Publish signals every listener of any of tables. It never blocks: a
// listener that already has a signal pending is skipped.
func (h *Hub) Publish(tables ...store.Table) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, l := range h.listeners {
		if !slices.ContainsFunc(tables, func(t store.Table) bool { return slices.Contains(l.tables, t) }) {
			continue
		}
		select {
		case l.ch <- struct{}{}:
			delivered++
		default:
		}
	}
	if delivered > 0 {
		h.inst.Notify.Add(context.Background(), int64(delivered),
			metric.WithAttributes(attribute.Int("tables", len(tables))))
		h.logger.Debug("tables changed", "tables", tables, "listeners", delivered)
	}
}

// ListenerCount returns the number of active listeners.
func (h *Hub) ListenerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
