package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
)

func TestNoopImplementationsDoNotPanic(t *testing.T) {
	ctx := context.Background()

	logger := NewNoopLogger()
	logger.Debug(ctx, "debug", "k", "v")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn", "count", 3)
	logger.Error(ctx, "error", "err", "boom")

	metrics := NewNoopMetrics()
	metrics.IncCounter("calls", 1, "capability", "demo.echo")
	metrics.RecordTimer("latency", 10*time.Millisecond)
	metrics.RecordGauge("queue_depth", 5)

	tracer := NewNoopTracer()
	spanCtx, span := tracer.Start(ctx, "op")
	span.AddEvent("tick")
	span.SetStatus(codes.Ok, "")
	span.RecordError(nil)
	span.End()
	if tracer.Span(spanCtx) == nil {
		t.Fatalf("expected Span to return a non-nil no-op span")
	}
}

func TestKvSliceToAttrsConvertsKnownTypes(t *testing.T) {
	attrs := kvSliceToAttrs([]any{"s", "x", "i", 1, "i64", int64(2), "f", 1.5, "b", true, "odd"})
	if len(attrs) != 5 {
		t.Fatalf("expected 5 attributes from 5 complete pairs, got %d", len(attrs))
	}
}

func TestKvSliceToClueSkipsNonStringKeys(t *testing.T) {
	fields := kvSliceToClue([]any{1, "v", "key", "value"})
	if len(fields) != 1 {
		t.Fatalf("expected the non-string key to be skipped, got %d fields", len(fields))
	}
}

func TestTagsToAttrsPairsUpTags(t *testing.T) {
	attrs := tagsToAttrs([]string{"capability", "demo.echo", "status", "ok"})
	if len(attrs) != 2 {
		t.Fatalf("expected 2 tag pairs, got %d", len(attrs))
	}
}
