package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/robert1948/localstorm-sub000/internal/metrics"
)

// panicResponse mirrors the error envelope shape written by the errors
// package, duplicated here because that package imports this one.
type panicResponse struct {
	Error panicDetail `json:"error"`
}

type panicDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Recovery converts handler panics into 500 responses. The stack goes to the
// log, never to the client.
func Recovery(log *zap.Logger, m *metrics.HTTP) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					m.RecordPanic()
					if log != nil {
						log.Error("handler panic",
							zap.String("method", r.Method),
							zap.String("path", r.URL.Path),
							zap.String("request_id", GetRequestID(r.Context())),
							zap.Any("panic", rec),
							zap.String("stack", string(debug.Stack())))
					}
					writePanicResponse(w, r, fmt.Sprintf("panic: %v", rec))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func writePanicResponse(w http.ResponseWriter, r *http.Request, _ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(panicResponse{Error: panicDetail{
		Code:      "INTERNAL_ERROR",
		Message:   "An internal error occurred",
		RequestID: GetRequestID(r.Context()),
	}})
}
