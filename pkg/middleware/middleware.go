package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/diagnosis/expo-appointments/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's request id, or mints one, and exposes it to the logger.
// Ids longer than 128 bytes are replaced.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), logger.RequestIDKey, id)))
	})
}

// Logging emits one structured line per request; 5xx responses log at error level.
func Logging(next http.Handler) http.Handler {
	return middleware.RequestLogger(&StructuredLogger{})(next)
}

type StructuredLogger struct{}

func (l *StructuredLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &StructuredLogEntry{request: r}
}

type StructuredLogEntry struct {
	request *http.Request
}

func (l *StructuredLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	ctx := l.request.Context()
	args := []any{
		"method", l.request.Method,
		"path", l.request.URL.Path,
		"status", status,
		"bytes", bytes,
		"elapsed_ms", elapsed.Milliseconds(),
		"remote_addr", l.request.RemoteAddr,
	}
	switch {
	case status >= http.StatusInternalServerError:
		logger.ErrorContext(ctx, "HTTP request failed", args...)
	case status == http.StatusConflict || status == http.StatusTooManyRequests:
		// slot full, duplicate, quota and in-flight rejections
		logger.WarnContext(ctx, "HTTP request rejected", args...)
	default:
		logger.InfoContext(ctx, "HTTP request completed", args...)
	}
}

func (l *StructuredLogEntry) Panic(v interface{}, stack []byte) {
	logger.ErrorContext(l.request.Context(), "HTTP request panic",
		"panic", v,
		"stack", string(stack),
		"method", l.request.Method,
		"path", l.request.URL.Path,
	)
}

func ServiceName(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), logger.ServiceKey, name)))
		})
	}
}

// Check is a named readiness probe, e.g. a database ping.
type Check func(ctx context.Context) error

type healthBody struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Failing   map[string]string `json:"failing,omitempty"`
}

// Health answers /healthz. Every check must pass within two seconds for a 200;
// otherwise the response is 503 listing the failing checks.
func Health(checks map[string]Check) func(http.Handler) http.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			body := healthBody{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)}
			for _, name := range names {
				if err := checks[name](ctx); err != nil {
					if body.Failing == nil {
						body.Failing = map[string]string{}
					}
					body.Failing[name] = err.Error()
				}
			}

			code := http.StatusOK
			if len(body.Failing) > 0 {
				body.Status = "degraded"
				code = http.StatusServiceUnavailable
				logger.WarnContext(ctx, "Health check failing", "failing", body.Failing)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			_ = json.NewEncoder(w).Encode(body)
		})
	}
}
