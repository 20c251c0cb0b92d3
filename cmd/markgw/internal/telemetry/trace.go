package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names used across the gateway.
const (
	TracerAuth  = "markgw/auth"
	TracerProxy = "markgw/proxy"
)

// StartSpan creates a new span for a gateway operation.
//
//	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerProxy, "proxy.Forward",
//	    attribute.String(telemetry.AttrTarget, "primary_api"),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error on the span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds a named event to the span with optional attributes.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Common attribute keys
const (
	AttrTarget       = "gateway.target"
	AttrAuthMethod   = "auth.method"
	AttrAuthStrategy = "auth.strategy"
	AttrUserRole     = "user.role"
	AttrOutcome      = "forward.outcome"
	AttrStatusCode   = "http.status_code"
)
