// Package middleware carries the proxy's cross-cutting HTTP concerns:
// request-id assignment and the request lifecycle log that feeds the stats
// counters and the history database.
package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/pysugar/vertex-nexus/internal/db/models"
	"github.com/pysugar/vertex-nexus/internal/logging"
	"github.com/pysugar/vertex-nexus/internal/proxy/handlers"
	"github.com/pysugar/vertex-nexus/internal/proxy/monitor"
	"github.com/pysugar/vertex-nexus/internal/stats"
)

// RequestID assigns every request an id, honouring an inbound X-Request-ID,
// and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}

// statusRecorder captures the response status. It forwards Flush so SSE
// handlers keep working behind the middleware chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(b)
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestLog logs the request lifecycle, bumps the stats counters, and hands
// the completed record to the history monitor.
func RequestLog(tracker *stats.Tracker, mon *monitor.Monitor) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := logging.GetRequestID(r.Context())
			log.Printf("📥 [%s] %s %s", requestID, r.Method, r.URL.Path)

			ctx, meta := handlers.WithMeta(r.Context())
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))
			elapsed := time.Since(start)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			log.Printf("📤 [%s] %s %s -> %d (%s)", requestID, r.Method, r.URL.Path, rec.status, elapsed.Round(time.Millisecond))

			if tracker != nil {
				tracker.RecordRequest()
			}
			mon.Record(models.RequestRecord{
				ID:            requestID,
				Timestamp:     start.UnixMilli(),
				Method:        r.Method,
				Path:          r.URL.Path,
				Status:        rec.status,
				DurationMs:    elapsed.Milliseconds(),
				Provider:      meta.Provider,
				ModelInput:    meta.ModelInput,
				ResolvedModel: meta.ResolvedModel,
				Region:        meta.Region,
				Error:         meta.Error,
			})
		})
	}
}
