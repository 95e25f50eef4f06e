package observe

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeader carries the trace ID of every ops server response.
const TraceHeader = "X-Trace-ID"

// scrapePaths are polled by Prometheus and orchestrators. Successful hits
// are logged at debug level so they do not drown the bot's own logs.
var scrapePaths = map[string]bool{
	"/metrics": true,
	"/healthz": true,
	"/readyz":  true,
}

// responseWriter remembers the status code and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Middleware instruments the ops server. Every request continues the W3C
// trace context it carries in a server span, echoes the trace ID in
// [TraceHeader], records [Metrics.HTTPRequestDuration] and logs one line.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			serveObserved(m, next, w, r)
		})
	}
}

func serveObserved(m *Metrics, next http.Handler, w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx := propagation.TraceContext{}.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+r.URL.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPath(r.URL.Path),
		),
	)
	defer span.End()

	traceID := TraceID(ctx)
	if traceID != "" {
		w.Header().Set(TraceHeader, traceID)
	}

	rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
	next.ServeHTTP(rw, r.WithContext(ctx))
	elapsed := time.Since(start)

	span.SetAttributes(semconv.HTTPResponseStatusCode(rw.status))
	m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("method", r.Method),
		attribute.String("path", r.URL.Path),
		attribute.String("status", strconv.Itoa(rw.status)),
	))
	logRequest(ctx, r, rw, traceID, elapsed)
}

func logRequest(ctx context.Context, r *http.Request, rw *responseWriter, traceID string, elapsed time.Duration) {
	level := slog.LevelInfo
	if scrapePaths[r.URL.Path] && rw.status < http.StatusBadRequest {
		level = slog.LevelDebug
	}
	slog.LogAttrs(ctx, level, "observe: ops request",
		slog.String("trace_id", traceID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rw.status),
		slog.Int("bytes", rw.bytes),
		slog.Duration("duration", elapsed),
	)
}
