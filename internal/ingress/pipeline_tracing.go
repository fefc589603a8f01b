package ingress

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/raidcore/raidcore/internal/telemetry"
)

// pipelineTracer emits the (trace_id, stage, outcome, checks_applied,
// elapsed_ns) span-event tuple for every Stage-1 substep.
type pipelineTracer struct {
	tracer trace.Tracer
}

func newPipelineTracer() *pipelineTracer {
	return &pipelineTracer{tracer: telemetry.Tracer("ingress.pipeline")}
}

type checksCounterKey struct{}

type startedKey struct{}

// start opens one span per Ingest call and seeds a per-request checks
// counter in the returned context, so concurrent requests don't share
// state.
func (t *pipelineTracer) start(ctx context.Context, name string) (context.Context, *pipelineSpan) {
	ctx, span := t.tracer.Start(ctx, name)
	counter := new(int)
	ctx = context.WithValue(ctx, checksCounterKey{}, counter)
	started := time.Now()
	ctx = context.WithValue(ctx, startedKey{}, started)
	return ctx, &pipelineSpan{span: span, started: started}
}

func (t *pipelineTracer) event(ctx context.Context, stage, outcome string) {
	checks := 1
	if counter, ok := ctx.Value(checksCounterKey{}).(*int); ok {
		*counter++
		checks = *counter
	}
	attrs := []attribute.KeyValue{
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
		attribute.Int("checks_applied", checks),
	}
	if started, ok := ctx.Value(startedKey{}).(time.Time); ok {
		attrs = append(attrs, attribute.Int64("elapsed_ns", time.Since(started).Nanoseconds()))
	}
	span := trace.SpanFromContext(ctx)
	span.AddEvent("ingress.stage", trace.WithAttributes(attrs...))
}

type pipelineSpan struct {
	span    trace.Span
	started time.Time
}

func (s *pipelineSpan) end() {
	s.span.SetAttributes(attribute.Int64("elapsed_ns", time.Since(s.started).Nanoseconds()))
	s.span.End()
}
