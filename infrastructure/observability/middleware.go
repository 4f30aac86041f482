package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// MetricsMiddleware records count, duration and payload sizes once per
// request. Recording is deferred so it also happens when a downstream
// handler panics; in that case the request is counted as a 500.
func MetricsMiddleware(metrics *HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestSize := requestContentLength(r)
			ww := newResponseWriter(w)

			defer func() {
				rec := recover()
				status := ww.Status()
				if rec != nil && !ww.wroteHeader {
					status = http.StatusInternalServerError
				}

				metrics.Record(r.Context(), RequestObservation{
					Method:       r.Method,
					Route:        routePattern(r),
					StatusCode:   status,
					Duration:     time.Since(start),
					RequestSize:  requestSize,
					ResponseSize: ww.responseSize(),
				})

				if rec != nil {
					panic(rec)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// TracingMiddleware opens the server span for each request. Incoming trace
// context is extracted with propagator and the trace id is echoed in the
// X-Trace-ID response header.
func TracingMiddleware(tracer trace.Tracer, propagator propagation.TextMapPropagator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(
				ctx,
				r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
					attribute.String("http.host", r.Host),
					attribute.String("http.user_agent", r.UserAgent()),
					attribute.String("http.request_id", w.Header().Get("X-Request-ID")),
				),
			)
			ww := newResponseWriter(w)

			defer func() {
				rec := recover()
				status := ww.Status()
				if rec != nil {
					status = http.StatusInternalServerError
					span.RecordError(fmt.Errorf("panic: %v", rec))
				}

				route := routePattern(r)
				span.SetName(r.Method + " " + route)
				span.SetAttributes(
					attribute.String("http.route", route),
					attribute.Int("http.status_code", status),
					attribute.Int64("http.response_size", ww.responseSize()),
				)
				if status >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, http.StatusText(status))
				} else {
					span.SetStatus(codes.Ok, "")
				}
				span.End()

				if rec != nil {
					panic(rec)
				}
			}()

			propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))
			if spanCtx := span.SpanContext(); spanCtx.HasTraceID() {
				w.Header().Set("X-Trace-ID", spanCtx.TraceID().String())
			}

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}

// routePattern returns the matched chi pattern, falling back to the raw path
// for unmatched requests.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func requestContentLength(r *http.Request) int64 {
	if header := r.Header.Get("Content-Length"); header != "" {
		if n, err := strconv.ParseInt(header, 10, 64); err == nil && n >= 0 {
			return n
		}
		return 0
	}
	if r.ContentLength > 0 {
		return r.ContentLength
	}
	return 0
}

// responseWriter captures status and size of the response
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
	wroteHeader  bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *responseWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// Status returns the response status, 200 if none was written.
func (w *responseWriter) Status() int {
	return w.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// responseSize prefers the outgoing Content-Length header and falls back to
// the number of bytes actually written.
func (w *responseWriter) responseSize() int64 {
	if header := w.Header().Get("Content-Length"); header != "" {
		if n, err := strconv.ParseInt(header, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return w.bytesWritten
}
