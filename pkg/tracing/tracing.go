// Package tracing provides the one-span-per-operation instrumentation
// required for acquire/renew/release (C8). Enrichment from the
// jordigilh-kubernaut example, which depends on the same
// go.opentelemetry.io/otel packages; the teacher has no tracer of its own.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "leasing"

// Tracer returns the package-wide tracer. A no-op tracer is returned until
// the caller wires a real TracerProvider via otel.SetTracerProvider, which
// is the embedder's concern, not the core's.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Outcome tags used on every span's "outcome" attribute.
const (
	OutcomeSuccess      = "success"
	OutcomeFailure      = "failure"
	OutcomeTimeout      = "timeout"
	OutcomeAlreadyHeld  = "already_held"
	OutcomeLost         = "lost"
)

// StartSpan opens a span for a provider operation (acquire/renew/release/break)
// tagged with the lease name, lease id, and provider kind per spec.
func StartSpan(ctx context.Context, operation, provider, leaseName, leaseID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("lease.name", leaseName),
		attribute.String("lease.provider", provider),
	}
	if leaseID != "" {
		attrs = append(attrs, attribute.String("lease.id", leaseID))
	}
	return Tracer().Start(ctx, "lease."+operation, trace.WithAttributes(attrs...))
}

// EndSpan records the outcome attribute and, on failure, the error before
// ending the span.
func EndSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("lease.outcome", outcome))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
