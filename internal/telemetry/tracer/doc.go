// Package tracer provides OpenTelemetry tracing for authcore.
//
// A Provider wraps the OpenTelemetry SDK tracer provider. Finished spans are
// written to the structured logger at debug level unless another exporter is
// supplied. Services accept a trace.Tracer and fall back to a no-op tracer,
// so tracing stays optional.
package tracer
