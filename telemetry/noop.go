package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NoopLogger discards every log line. It is the default when a component is
// constructed without an explicit Logger.
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (*NoopLogger) Debug(ctx context.Context, msg string, keyvals ...any) {}
func (*NoopLogger) Info(ctx context.Context, msg string, keyvals ...any)  {}
func (*NoopLogger) Warn(ctx context.Context, msg string, keyvals ...any)  {}
func (*NoopLogger) Error(ctx context.Context, msg string, keyvals ...any) {}

// NoopMetrics discards every counter, timer, and gauge observation.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics { return &NoopMetrics{} }

func (*NoopMetrics) IncCounter(name string, value float64, tags ...string)           {}
func (*NoopMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {}
func (*NoopMetrics) RecordGauge(name string, value float64, tags ...string)          {}

// NoopTracer produces spans that record nothing.
type NoopTracer struct{}

func NewNoopTracer() *NoopTracer { return &NoopTracer{} }

func (*NoopTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (*NoopTracer) Span(ctx context.Context) Span { return noopSpan{} }

type noopSpan struct{}

func (noopSpan) End(opts ...trace.SpanEndOption)                {}
func (noopSpan) AddEvent(name string, attrs ...any)             {}
func (noopSpan) SetStatus(code codes.Code, description string) {}
func (noopSpan) RecordError(err error, opts ...trace.EventOption) {}
