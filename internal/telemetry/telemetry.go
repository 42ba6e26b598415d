// Package telemetry holds the OpenTelemetry instruments geosafe reports
// through: one tracer for pipeline task spans and a small set of counters
// and histograms for guard decisions, repairs and task durations.
//
// Instruments come from the global providers, which are no-ops until Init
// installs exporting ones.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName scopes every tracer and meter geosafe creates.
const InstrumentationName = "github.com/roach88/geosafe"

// Tracer returns the geosafe tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Metrics holds the geosafe metric instruments.
type Metrics struct {
	decisions    metric.Int64Counter
	repairs      metric.Int64Counter
	tasks        metric.Int64Counter
	taskDuration metric.Float64Histogram
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	decisions, err := meter.Int64Counter("geosafe.guard.decisions",
		metric.WithDescription("Guard and validator decisions by operation and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating geosafe.guard.decisions counter: %w", err)
	}

	repairs, err := meter.Int64Counter("geosafe.repair.records",
		metric.WithDescription("Records repaired or excluded by the validator"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating geosafe.repair.records counter: %w", err)
	}

	tasks, err := meter.Int64Counter("geosafe.pipeline.tasks",
		metric.WithDescription("Pipeline tasks by operation and final status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating geosafe.pipeline.tasks counter: %w", err)
	}

	taskDuration, err := meter.Float64Histogram("geosafe.pipeline.task.duration",
		metric.WithDescription("Duration of pipeline tasks in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating geosafe.pipeline.task.duration histogram: %w", err)
	}

	return &Metrics{
		decisions:    decisions,
		repairs:      repairs,
		tasks:        tasks,
		taskDuration: taskDuration,
	}, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns instruments created on the global meter provider.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.Meter(InstrumentationName))
		if err != nil {
			m, _ = NewMetrics(noop.NewMeterProvider().Meter(InstrumentationName))
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordDecision counts one decision.
func (m *Metrics) RecordDecision(ctx context.Context, operation, outcome string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RecordRepairs counts records repaired or excluded.
func (m *Metrics) RecordRepairs(ctx context.Context, action string, n int) {
	if n == 0 {
		return
	}
	m.repairs.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("action", action),
	))
}

// RecordTask records a finished pipeline task.
func (m *Metrics) RecordTask(ctx context.Context, operation, status string, duration time.Duration) {
	m.tasks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
	m.taskDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
