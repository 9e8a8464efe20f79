// Package middleware wraps the admin API handlers with cross-cutting
// request plumbing: request ids, metrics and panic containment.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestID tags every response with an X-Request-Id header so a CLI
// call can be matched to its server log lines. A usable id supplied by
// the client is kept.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitizeID(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = "req-" + uuid.NewString()[:8]
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// sanitizeID strips anything that could smuggle header content and caps
// the length. Returns "" when nothing usable is left.
func sanitizeID(id string) string {
	id = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '.' || r == '_' || r == '-' {
			return r
		}
		return -1
	}, id)
	if len(id) > 64 {
		id = id[:64]
	}
	return id
}

// RequestRecorder receives one count and one duration per API request.
// The metrics collector implements it.
type RequestRecorder interface {
	RecordRequest(method string)
	RecordLatency(d time.Duration)
}

// Metrics counts the request and times the handler underneath it. The
// duration is recorded even when the handler panics, so slow crashing
// requests still show up in the latency numbers.
func Metrics(recorder RequestRecorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder.RecordRequest(r.Method)
		start := time.Now()
		defer func() {
			recorder.RecordLatency(time.Since(start))
		}()
		next.ServeHTTP(w, r)
	})
}

// PanicRecovery turns a handler panic into a 500 instead of a dead
// process. The stack goes to the log under the request id.
func PanicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			slog.Error("api handler panic",
				"request_id", w.Header().Get("X-Request-Id"),
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rec,
				"stack", string(debug.Stack()))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
