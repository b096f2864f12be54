package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/robert1948/localstorm-sub000/internal/guard"
)

// Admission runs every request through the engine before it reaches a
// handler. Denied requests get the 429 envelope and diagnostic headers;
// admitted ones proceed with the headers attached, and their final status is
// fed back to the engine so authentication failures accumulate.
//
// observe, when non-nil, receives the engine's decision latency.
func Admission(ctrl *guard.Controller, log *zap.Logger, observe func(time.Duration)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			d := ctrl.Check(guard.Request{
				Method:     r.Method,
				Path:       r.URL.Path,
				Header:     r.Header,
				RemoteAddr: r.RemoteAddr,
			})
			if observe != nil {
				observe(time.Since(start))
			}

			for k, v := range d.Headers {
				w.Header().Set(k, v)
			}

			if !d.Allowed {
				if log != nil {
					log.Debug("request denied",
						zap.String("client", d.ClientKey),
						zap.String("path", r.URL.Path),
						zap.String("reason", d.Reason),
						zap.String("request_id", GetRequestID(r.Context())))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(d.Status)
				_ = json.NewEncoder(w).Encode(d.Body())
				return
			}

			if d.Bypassed {
				next.ServeHTTP(w, r)
				return
			}

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			ctrl.RecordOutcome(d.ClientKey, wrapped.statusCode)
		})
	}
}
