// Package telemetry provides OpenTelemetry instruments for upstream API calls
// and the optional OTLP/HTTP trace exporter.
package telemetry

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/bobmcallan/dcim-mcp/internal/config"
)

const instrumentationName = "github.com/bobmcallan/dcim-mcp/internal/upstream"

// Instruments groups the tracer and metric instruments used around upstream requests.
type Instruments struct {
	Tracer trace.Tracer

	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewInstruments creates instruments from the given providers.
func NewInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(instrumentationName)

	requests, err := meter.Int64Counter("dcim.upstream.requests",
		metric.WithDescription("Number of requests sent to the DCIM API"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("dcim.upstream.duration",
		metric.WithDescription("Duration of DCIM API requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:   tp.Tracer(instrumentationName),
		requests: requests,
		duration: duration,
	}, nil
}

// Default returns instruments bound to the global otel providers, falling
// back to a no-op meter if instrument creation fails.
func Default() *Instruments {
	inst, err := NewInstruments(otel.GetTracerProvider(), otel.GetMeterProvider())
	if err != nil {
		inst, _ = NewInstruments(otel.GetTracerProvider(), noop.NewMeterProvider())
	}
	return inst
}

// RecordRequest records one completed upstream request. status is 0 when no
// response was received.
func (i *Instruments) RecordRequest(ctx context.Context, method string, status int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("http.response.status_code", statusLabel(status)),
	)
	i.requests.Add(ctx, 1, attrs)
	i.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}

// Setup installs an OTLP/HTTP trace exporter when an endpoint is configured
// and returns its shutdown func. Without an endpoint the global no-op
// providers stay in place.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	var opts []otlptracehttp.Option
	if strings.Contains(cfg.OTLPEndpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint), otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "dcim-mcp"
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", config.GetVersion()),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
