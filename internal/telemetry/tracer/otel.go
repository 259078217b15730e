package tracer

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName is the tracer name used by authcore services.
const InstrumentationName = "github.com/yndnr/authcore-go"

// Config configures tracing.
type Config struct {
	Enabled     bool    `koanf:"enabled"`
	ServiceName string  `koanf:"service_name"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

// Provider manages the OpenTelemetry tracer provider.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// New creates a tracer provider that logs finished spans.
// A disabled config yields a Provider whose tracers are no-ops.
func New(cfg Config, logger *slog.Logger) *Provider {
	if !cfg.Enabled {
		return &Provider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return NewWithExporter(cfg, &logExporter{logger: logger})
}

// NewWithExporter creates a provider that sends spans to exporter synchronously.
func NewWithExporter(cfg Config, exporter sdktrace.SpanExporter) *Provider {
	name := cfg.ServiceName
	if name == "" {
		name = "authcore"
	}
	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", name),
		)),
	)
	return &Provider{tp: tp}
}

// Tracer returns a named tracer.
func (p *Provider) Tracer(name string) trace.Tracer {
	if p == nil || p.tp == nil {
		return Noop()
	}
	return p.tp.Tracer(name)
}

// SetGlobal installs the provider as the process-wide OpenTelemetry provider.
func (p *Provider) SetGlobal() {
	if p == nil || p.tp == nil {
		return
	}
	otel.SetTracerProvider(p.tp)
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Noop returns a tracer that records nothing.
func Noop() trace.Tracer {
	return noop.NewTracerProvider().Tracer(InstrumentationName)
}

// OrNoop returns t, or a no-op tracer when t is nil.
func OrNoop(t trace.Tracer) trace.Tracer {
	if t == nil {
		return Noop()
	}
	return t
}

// logExporter writes finished spans to slog.
type logExporter struct {
	logger *slog.Logger
}

func (e *logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := []any{
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration", s.EndTime().Sub(s.StartTime()).Round(time.Microsecond),
			"status", s.Status().Code.String(),
		}
		for _, kv := range s.Attributes() {
			attrs = append(attrs, string(kv.Key), kv.Value.Emit())
		}
		e.logger.DebugContext(ctx, "span "+s.Name(), attrs...)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error {
	return nil
}
