package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an in-process OpenTelemetry TracerProvider: one span per
// router turn, with a child span per tool execution. Unlike the teacher's
// observability.Tracer, no OTLP exporter is configured — spec.md names no
// trace-collector external interface (§6 lists only the LLM provider, the
// knowledge retriever, and the calculators as consumed interfaces), so
// spans are created, attributed, and ended for any in-process consumer
// (a test, a future exporter registered by the caller) without shipping
// them anywhere by default.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer backed by a fresh, no-exporter
// TracerProvider and installs it as the global provider.
func NewTracer(serviceName string) *Tracer {
	provider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(provider)
	return &Tracer{provider: provider, tracer: provider.Tracer(serviceName)}
}

// Shutdown flushes and releases the underlying provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartTurn opens the root span for one router.Chat call.
func (t *Tracer) StartTurn(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return t.start(ctx, "router.turn", trace.SpanKindServer,
		attribute.String("session_id", sessionID))
}

// StartTool opens a child span for one executor.Execute call.
func (t *Tracer) StartTool(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.start(ctx, "tool."+toolName, trace.SpanKindInternal,
		attribute.String("tool.name", toolName))
}

// StartLLMCall opens a child span for one LLM RPC.
func (t *Tracer) StartLLMCall(ctx context.Context, transportName string) (context.Context, trace.Span) {
	return t.start(ctx, "llm.call", trace.SpanKindClient,
		attribute.String("llm.transport", transportName))
}

func (t *Tracer) start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// RecordError marks a span as failed, recording err. A nil err is a no-op
// so callers can pass their function's error return unconditionally.
func RecordError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
