package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for every ledger instrument.
const MeterName = "github.com/roach88/sovereign"

// Instruments holds the ledger's metric instruments.
type Instruments struct {
	TxCommits   metric.Int64Counter
	TxRollbacks metric.Int64Counter
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter
	ImportRows  metric.Int64Counter
	Notify      metric.Int64Counter
}

// NewInstruments creates all instruments from the given meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	m := &Instruments{}
	var err error

	m.TxCommits, err = meter.Int64Counter("sovereign.tx.commits",
		metric.WithDescription("Committed ledger transactions"),
	)
	if err != nil {
		return nil, err
	}

	m.TxRollbacks, err = meter.Int64Counter("sovereign.tx.rollbacks",
		metric.WithDescription("Ledger transactions rolled back after an error"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("sovereign.cache.hits",
		metric.WithDescription("Cached query lookups served from memory"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("sovereign.cache.misses",
		metric.WithDescription("Cached query lookups that ran the underlying query"),
	)
	if err != nil {
		return nil, err
	}

	m.ImportRows, err = meter.Int64Counter("sovereign.import.rows",
		metric.WithDescription("Rows restored from backup snapshots"),
	)
	if err != nil {
		return nil, err
	}

	m.Notify, err = meter.Int64Counter("sovereign.reactive.notifications",
		metric.WithDescription("Table change notifications delivered to subscribers"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Default builds instruments from the global meter provider, which is a
// no-op until the process installs an SDK provider.
func Default() *Instruments {
	m, err := NewInstruments(otel.Meter(MeterName))
	if err != nil {
		// The global provider only fails on invalid instrument names.
		panic(err)
	}
	return m
}
