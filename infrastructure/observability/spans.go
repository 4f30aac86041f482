package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer opens spans whose parent is taken from the passed context. The
// context returned by Start must be handed to nested calls so their spans
// become children of this one.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a span coordinator around an OTel tracer.
func NewTracer(tracer trace.Tracer) *Tracer {
	return &Tracer{tracer: tracer}
}

// Span is a single unit of work. End is idempotent so a deferred End and an
// explicit one never close the underlying span twice.
type Span struct {
	span    trace.Span
	endOnce sync.Once
}

// Start opens a span as a child of any span already in ctx.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}

// SetAttributes attaches attributes to the span.
func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

// SpanContext returns the OTel span context, mostly for correlation ids.
func (s *Span) SpanContext() trace.SpanContext {
	return s.span.SpanContext()
}

// End records the terminal status and closes the span. A nil err marks the
// span ok; otherwise the error is recorded and the status carries its message.
func (s *Span) End(err error, attrs ...attribute.KeyValue) {
	s.endOnce.Do(func() {
		if len(attrs) > 0 {
			s.span.SetAttributes(attrs...)
		}
		if err != nil {
			s.span.RecordError(err)
			s.span.SetStatus(codes.Error, err.Error())
		} else {
			s.span.SetStatus(codes.Ok, "")
		}
		s.span.End()
	})
}

// Trace runs fn inside a span named name and closes the span on every exit
// path. A panic in fn ends the span with an error status and is re-raised.
func Trace[T any](ctx context.Context, t *Tracer, name string, fn func(ctx context.Context, span *Span) (T, error), attrs ...attribute.KeyValue) (result T, err error) {
	ctx, span := t.Start(ctx, name, attrs...)
	defer func() {
		if rec := recover(); rec != nil {
			span.End(fmt.Errorf("panic: %v", rec))
			panic(rec)
		}
		span.End(err)
	}()

	return fn(ctx, span)
}

// Run is Trace for operations without a result value.
func Run(ctx context.Context, t *Tracer, name string, fn func(ctx context.Context, span *Span) error, attrs ...attribute.KeyValue) error {
	_, err := Trace(ctx, t, name, func(ctx context.Context, span *Span) (struct{}, error) {
		return struct{}{}, fn(ctx, span)
	}, attrs...)
	return err
}
