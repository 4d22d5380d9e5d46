package logger

import (
	"log/slog"
	"net/http"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// RequestLogger returns a chi-compatible middleware that logs each status
// request with method, path, status, duration_ms, and response size.
func RequestLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrap, r)
			log.Debug("status request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrap.status),
				slog.Int("duration_ms", int(time.Since(start).Milliseconds())),
				slog.Int("size", wrap.size),
			)
		})
	}
}

// Transport logs every outbound request made through it. Bodies are not
// touched, so streamed uploads and downloads pass through unchanged.
type Transport struct {
	Base http.RoundTripper
	Log  *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, log *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Log: log}
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Base.RoundTrip(r)
	if t.Log == nil {
		return resp, err
	}
	attrs := []any{
		slog.String("method", r.Method),
		slog.String("url", r.URL.Redacted()),
		slog.Int("duration_ms", int(time.Since(start).Milliseconds())),
	}
	if err != nil {
		t.Log.Warn("outbound request failed", append(attrs, slog.String("error", err.Error()))...)
		return resp, err
	}
	t.Log.Debug("outbound request",
		append(attrs, slog.Int("status", resp.StatusCode), slog.Int64("content_length", resp.ContentLength))...)
	return resp, nil
}
