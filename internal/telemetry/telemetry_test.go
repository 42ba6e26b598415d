package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter(InstrumentationName))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDecision(ctx, "buffer", "blocked")
	m.RecordDecision(ctx, "buffer", "blocked")
	m.RecordRepairs(ctx, "repaired", 3)
	m.RecordRepairs(ctx, "repaired", 0)
	m.RecordTask(ctx, "buffer", "succeeded", 2*time.Second)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		byName[md.Name] = md
	}

	decisions, ok := byName["geosafe.guard.decisions"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, decisions.DataPoints, 1)
	assert.Equal(t, int64(2), decisions.DataPoints[0].Value)

	repairs, ok := byName["geosafe.repair.records"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(3), repairs.DataPoints[0].Value)

	durations, ok := byName["geosafe.pipeline.task.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Equal(t, uint64(1), durations.DataPoints[0].Count)
}

func TestDefaultIsUsable(t *testing.T) {
	m := Default()
	require.NotNil(t, m)
	assert.Same(t, m, Default())
	m.RecordDecision(context.Background(), "join", "allowed")
	assert.NotNil(t, Tracer())
}

func TestInitWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "geosafe"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
