package tracer

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_Disabled(t *testing.T) {
	p := New(Config{Enabled: false}, nil)

	_, span := p.Tracer("test").Start(context.Background(), "noop")
	span.End()

	if span.SpanContext().IsValid() {
		t.Error("disabled provider should produce invalid (no-op) spans")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewWithExporter_RecordsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p := NewWithExporter(Config{Enabled: true, ServiceName: "authcore-test"}, exp)
	defer p.Shutdown(context.Background())

	ctx, parent := p.Tracer("test").Start(context.Background(), "parent")
	_, child := p.Tracer("test").Start(ctx, "child")
	child.SetAttributes(attribute.String("kind", "buyer"))
	child.End()
	parent.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name != "child" || spans[1].Name != "parent" {
		t.Errorf("span order = %s, %s", spans[0].Name, spans[1].Name)
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("child should be parented to parent")
	}
}

func TestNew_LogsSpans(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := New(Config{Enabled: true}, logger)
	_, span := p.Tracer("test").Start(context.Background(), "token.refresh")
	span.End()
	_ = p.Shutdown(context.Background())

	if !strings.Contains(buf.String(), "span token.refresh") {
		t.Errorf("expected span in log output, got %q", buf.String())
	}
}

func TestOrNoop(t *testing.T) {
	if OrNoop(nil) == nil {
		t.Fatal("OrNoop(nil) returned nil")
	}
	var p *Provider
	if p.Tracer("x") == nil {
		t.Fatal("nil provider should hand out a no-op tracer")
	}
}
