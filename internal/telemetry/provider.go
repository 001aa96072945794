package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ExporterLog writes collected metrics to the process logger.
const ExporterLog = "log"

// DefaultInterval applies when Config.Interval is zero.
const DefaultInterval = time.Minute

// Config selects whether and how metrics leave the process.
type Config struct {
	Enabled  bool
	Exporter string
	Interval time.Duration
}

// Provider owns a meter provider and the instruments built from it.
// Shutdown flushes whatever has not been exported yet.
type Provider struct {
	MeterProvider metric.MeterProvider
	Instruments   *Instruments
	shutdown      func(context.Context) error
}

// Init builds the provider described by cfg. When cfg.Enabled is false the
// instruments are no-ops.
func Init(cfg Config, logger *slog.Logger) (*Provider, error) {
	if !cfg.Enabled {
		mp := noop.NewMeterProvider()
		inst, err := NewInstruments(mp.Meter(MeterName))
		if err != nil {
			return nil, err
		}
		return &Provider{
			MeterProvider: mp,
			Instruments:   inst,
			shutdown:      func(context.Context) error { return nil },
		}, nil
	}

	if logger == nil {
		logger = slog.Default()
	}
	var exp sdkmetric.Exporter
	switch cfg.Exporter {
	case "", ExporterLog:
		exp = &logExporter{logger: logger}
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", cfg.Exporter)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewSchemaless(semconv.ServiceName("sovereign"))),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
	inst, err := NewInstruments(mp.Meter(MeterName))
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, err
	}
	return &Provider{MeterProvider: mp, Instruments: inst, shutdown: mp.Shutdown}, nil
}

// Shutdown exports pending data and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

// logExporter logs one record per counter data point.
type logExporter struct {
	logger *slog.Logger
}

func (e *logExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *logExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *logExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				args := []any{"name", m.Name, "value", dp.Value}
				for _, kv := range dp.Attributes.ToSlice() {
					args = append(args, string(kv.Key), kv.Value.Emit())
				}
				e.logger.InfoContext(ctx, "metric", args...)
			}
		}
	}
	return nil
}

func (e *logExporter) ForceFlush(context.Context) error { return nil }

func (e *logExporter) Shutdown(context.Context) error { return nil }
