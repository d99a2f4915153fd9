package middleware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CorrelationHeader carries the request id in and out.
const CorrelationHeader = "X-Correlation-Id"

const correlationKey contextKey = "correlation_id"

// CorrelationID reuses an incoming X-Correlation-Id or assigns a new one,
// and echoes it on the response.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		ctx := context.WithValue(r.Context(), correlationKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationIDFrom returns the request's correlation id.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is required by the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// RequestLogger logs one line per request.
func RequestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			entry := log.WithFields(logrus.Fields{
				"method":         r.Method,
				"path":           r.URL.Path,
				"status":         rec.status,
				"duration_ms":    time.Since(start).Milliseconds(),
				"correlation_id": CorrelationIDFrom(r.Context()),
			})
			switch {
			case rec.status >= 500:
				entry.Error("request failed")
			case rec.status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request handled")
			}
		})
	}
}
