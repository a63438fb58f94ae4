package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/okian/matchlearn/pkg/logger"
	"github.com/okian/matchlearn/pkg/metrics"
)

// requestIDHeader is echoed on every response; a client-supplied value is kept.
const requestIDHeader = "X-Request-ID"

// errorCodeHeader carries the classified error code of a failed response so
// that clients and the metrics middleware see the same value.
const errorCodeHeader = "X-Error-Code"

// RequestIDMiddleware tags the request context with a request id so that
// every log entry written while serving it can be correlated.
func RequestIDMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithFields(r.Context(), logger.RequestID(id))))
	}
}

// MetricsMiddleware records request count, latency and classified errors
// for endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(time.Since(start).Milliseconds()))

		if rec.status < http.StatusBadRequest {
			return
		}
		code := rec.Header().Get(errorCodeHeader)
		if code == "" {
			code = "http_" + status
		}
		metrics.RecordErrorByEndpoint(endpoint, r.Method, code)
		metrics.RecordErrorByType(code, severity(rec.status))
	}
}

// severity grades a failed status. Lifecycle refusals (409, 422) and
// backpressure are expected operator-facing outcomes.
func severity(status int) string {
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		return "high"
	case status == http.StatusConflict, status == http.StatusUnprocessableEntity, status == http.StatusTooManyRequests:
		return "low"
	default:
		return "medium"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
