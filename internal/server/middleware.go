package server

import (
	"log/slog"
	"net/http"
	"time"
)

// maxQueryLogLen is the maximum length for logged query strings before truncation.
const maxQueryLogLen = 200

// slowRequestThreshold is the duration above which requests are logged at WARN level.
const slowRequestThreshold = 100 * time.Millisecond

// statusRecorder captures the response status. It forwards Flush so streamed
// responses keep working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// LoggingMiddleware returns middleware that logs all requests with timing.
// Slow requests (>100ms) are logged at WARN level, except on streaming paths
// where long durations are expected. 5xx responses are logged at ERROR level.
func LoggingMiddleware(logger *slog.Logger, streamingPaths ...string) func(http.Handler) http.Handler {
	streaming := make(map[string]bool, len(streamingPaths))
	for _, p := range streamingPaths {
		streaming[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			defer func() {
				duration := time.Since(start)
				status := rec.status
				if status == 0 {
					status = http.StatusOK
				}
				aborted := false
				if v := recover(); v != nil {
					if v != http.ErrAbortHandler {
						panic(v)
					}
					aborted = true
				}

				attrs := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"duration_ms", duration.Milliseconds(),
				}
				if q := r.URL.RawQuery; q != "" {
					attrs = append(attrs, "query", truncate(q, maxQueryLogLen))
				}

				switch {
				case aborted:
					logger.Error("request aborted", attrs...)
				case status >= http.StatusInternalServerError:
					logger.Error("request failed", attrs...)
				case duration > slowRequestThreshold && !streaming[r.URL.Path]:
					logger.Warn("slow request", attrs...)
				default:
					logger.Debug("request completed", attrs...)
				}

				if aborted {
					panic(http.ErrAbortHandler)
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
