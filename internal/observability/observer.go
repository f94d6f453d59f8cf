package observability

import (
	"context"
	"time"
)

// Observer bundles Metrics and Tracer behind the single reference the
// router, executor, and LLM failover client hold. Each of those
// components treats a nil *Observer as "observability disabled" — the
// wiring is optional so unit tests can construct them without a
// Prometheus registry or tracer provider.
type Observer struct {
	Metrics *Metrics
	Tracer  *Tracer
}

// New builds an Observer from an already-constructed Metrics and Tracer.
func New(metrics *Metrics, tracer *Tracer) *Observer {
	return &Observer{Metrics: metrics, Tracer: tracer}
}

// Turn wraps one router.Chat call: it opens a span and returns a done
// func that ends the span and records turn duration. Safe to call on a
// nil *Observer.
func (o *Observer) Turn(ctx context.Context, sessionID string) (context.Context, func()) {
	if o == nil {
		return ctx, func() {}
	}
	start := time.Now()
	ctx, span := o.Tracer.StartTurn(ctx, sessionID)
	return ctx, func() {
		span.End()
		o.Metrics.ObserveTurn(time.Since(start))
	}
}

// ToolCall wraps one executor.Execute call: it opens a span and returns a
// done func that ends the span and records the outcome. Safe to call on a
// nil *Observer.
func (o *Observer) ToolCall(ctx context.Context, toolName string) (context.Context, func(success bool, err error)) {
	if o == nil {
		return ctx, func(bool, error) {}
	}
	start := time.Now()
	ctx, span := o.Tracer.StartTool(ctx, toolName)
	return ctx, func(success bool, err error) {
		RecordError(span, err)
		span.End()
		o.Metrics.ObserveToolCall(toolName, success, time.Since(start))
	}
}

// Failover records one LLM transport failover. Safe to call on a nil
// *Observer.
func (o *Observer) Failover(from, to string) {
	if o == nil {
		return
	}
	o.Metrics.ObserveFailover(from, to)
}
