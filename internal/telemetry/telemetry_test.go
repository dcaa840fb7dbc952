package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bobmcallan/dcim-mcp/internal/config"
)

func newTestInstruments(t *testing.T) (*Instruments, *tracetest.InMemoryExporter, *sdkmetric.ManualReader) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	inst, err := NewInstruments(tp, mp)
	require.NoError(t, err)
	return inst, exporter, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestRecordRequest_CountsByStatus(t *testing.T) {
	inst, _, reader := newTestInstruments(t)
	ctx := context.Background()

	inst.RecordRequest(ctx, "GET", 200, 10*time.Millisecond)
	inst.RecordRequest(ctx, "GET", 200, 20*time.Millisecond)
	inst.RecordRequest(ctx, "GET", 0, time.Millisecond)

	m, ok := findMetric(t, reader, "dcim.upstream.requests")
	require.True(t, ok, "request counter not exported")

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", m.Data)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
	assert.Len(t, sum.DataPoints, 2, "expected one series per status label")

	_, ok = findMetric(t, reader, "dcim.upstream.duration")
	assert.True(t, ok, "duration histogram not exported")
}

func TestInstruments_TracerProducesSpans(t *testing.T) {
	inst, exporter, _ := newTestInstruments(t)

	_, span := inst.Tracer.Start(context.Background(), "upstream.request")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "upstream.request", spans[0].Name)
}

func TestDefault_UsesGlobalProviders(t *testing.T) {
	inst := Default()
	require.NotNil(t, inst)
	// Must not panic against the global no-op providers.
	inst.RecordRequest(context.Background(), "POST", 401, time.Millisecond)
}

func TestSetup_NoEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_WithEndpoint(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		OTLPEndpoint: "localhost:4318",
		ServiceName:  "dcim-mcp-test",
	})
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "expected sdk tracer provider to be installed")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
