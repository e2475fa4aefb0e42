package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StoredTrace is a span context flattened into the W3C header values so a
// database row (an outbox event) can carry it until a background worker picks
// the row up.
type StoredTrace struct {
	Parent string
	State  string
}

// CaptureTrace records the span context active in ctx. It is zero when ctx
// carries no valid span.
func CaptureTrace(ctx context.Context) StoredTrace {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return StoredTrace{Parent: carrier.Get("traceparent"), State: carrier.Get("tracestate")}
}

func (t StoredTrace) IsZero() bool { return t.Parent == "" }

// Resume makes the stored span the remote parent of spans started from the
// returned context.
func (t StoredTrace) Resume(ctx context.Context) context.Context {
	if t.IsZero() {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": t.Parent}
	if t.State != "" {
		carrier["tracestate"] = t.State
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// Tracer returns the named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/md-rashed-zaman/courtdesk/" + name)
}
