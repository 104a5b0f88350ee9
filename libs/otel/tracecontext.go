package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceCarrier is the W3C trace context persisted on an outbox row. The
// publisher resumes it so the Kafka message joins the booking request's trace
// even though it is sent later from another goroutine.
type TraceCarrier struct {
	Traceparent string
	Tracestate  string
}

// CaptureTrace returns the trace context of ctx; both fields are empty when
// ctx carries no span.
func CaptureTrace(ctx context.Context) TraceCarrier {
	m := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, m)
	return TraceCarrier{Traceparent: m.Get("traceparent"), Tracestate: m.Get("tracestate")}
}

func (c TraceCarrier) Empty() bool {
	return c.Traceparent == ""
}

// Resume returns ctx with the stored trace context as its remote parent.
// Rows written without a trace leave ctx untouched.
func (c TraceCarrier) Resume(ctx context.Context) context.Context {
	if c.Empty() {
		return ctx
	}
	m := propagation.MapCarrier{"traceparent": c.Traceparent}
	if c.Tracestate != "" {
		m.Set("tracestate", c.Tracestate)
	}
	return otel.GetTextMapPropagator().Extract(ctx, m)
}
