package service

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/yndnr/authcore-go/internal/infra/clock"
	"github.com/yndnr/authcore-go/internal/telemetry/metric"
	"github.com/yndnr/authcore-go/internal/telemetry/tracer"
)

// Deps carries the ambient collaborators shared by every service.
// Zero fields fall back to the real clock, slog.Default(), no metrics and a
// no-op tracer.
type Deps struct {
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metric.Registry
	Tracer  trace.Tracer
}

func (d Deps) withDefaults() Deps {
	d.Clock = clock.OrReal(d.Clock)
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Tracer = tracer.OrNoop(d.Tracer)
	return d
}
