package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/SnowCait/user-notes-search/internal/metrics"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// InitLogger installs a JSON slog handler on w as the default logger.
// level is debug, info, warn or error; anything else means info.
func InitLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	logger.Info("logger initialized", "level", lvl.String())
	return logger
}

// RequestIDFromContext returns the id the middleware gave the request
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// LoggerFromContext returns the default logger tagged with the request id
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return slog.Default().With("request_id", id)
	}
	return slog.Default()
}

// apiRoutes bounds the route label of request metrics
var apiRoutes = map[string]bool{
	"/api/resolve":      true,
	"/api/posts/stream": true,
	"/api/posts/abort":  true,
	"/api/posts/search": true,
}

func routeLabel(path string) string {
	if apiRoutes[path] {
		return path
	}
	return "other"
}

// RequestLoggingMiddleware tags API requests with a short id, logs them
// once done and counts them. /health and /metrics pass through untouched.
func RequestLoggingMiddleware(m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		requestID := uuid.NewString()[:8]
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case rec.statusCode >= 500:
			slog.Error("request failed", attrs...)
		case rec.statusCode >= 400:
			slog.Warn("request rejected", attrs...)
		default:
			slog.Debug("request done", attrs...)
		}
		m.HTTPRequest(routeLabel(r.URL.Path), rec.statusCode)
	})
}

// statusResponseWriter records the status code for the request log
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets post streams through the wrapper
func (w *statusResponseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
