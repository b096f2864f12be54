// Package errors provides the HTTP error envelope used by every stormguard
// handler. Errors carry a machine-readable code that maps onto an HTTP
// status, a human-readable message and the request ID of the request they
// occurred in, so operators can line up client reports with server logs.
package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robert1948/localstorm-sub000/internal/server/middleware"
)

// Error codes used across the API surface.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeBadGateway         = "BAD_GATEWAY"
	CodeConfigInvalid      = "CONFIG_INVALID"
)

// Envelope is a structured application error.
type Envelope struct {
	Code    string
	Message string
	Details map[string]any

	// Wrapped is the underlying cause, kept for logs and never serialized
	// to clients.
	Wrapped error
}

// Error implements the error interface.
func (e *Envelope) Error() string {
	if e == nil {
		return ""
	}
	if e.Wrapped != nil {
		return e.Code + ": " + e.Message + ": " + e.Wrapped.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Envelope) Unwrap() error { return e.Wrapped }

// WithDetails attaches API-safe detail fields, merging over any existing.
func (e *Envelope) WithDetails(details map[string]any) *Envelope {
	if e == nil || len(details) == 0 {
		return e
	}
	if e.Details == nil {
		e.Details = make(map[string]any, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// New builds an envelope with an arbitrary code.
func New(code, message string) *Envelope {
	return &Envelope{Code: code, Message: message}
}

func NewInvalidInputError(message string) *Envelope { return New(CodeInvalidInput, message) }

func NewNotFoundError(message string) *Envelope { return New(CodeNotFound, message) }

func NewUnauthorizedError(message string) *Envelope { return New(CodeUnauthorized, message) }

func NewForbiddenError(message string) *Envelope { return New(CodeForbidden, message) }

func NewMethodNotAllowedError(message string) *Envelope { return New(CodeMethodNotAllowed, message) }

func NewInternalError(message string) *Envelope { return New(CodeInternal, message) }

func NewServiceUnavailableError(message string) *Envelope {
	return New(CodeServiceUnavailable, message)
}

func NewBadGatewayError(message string) *Envelope { return New(CodeBadGateway, message) }

func NewConfigInvalidError(message string) *Envelope { return New(CodeConfigInvalid, message) }

// Wrap attaches a cause to a fresh envelope.
func Wrap(code string, err error, message string) *Envelope {
	return &Envelope{Code: code, Message: message, Wrapped: err}
}

func WrapInternal(err error, message string) *Envelope {
	return Wrap(CodeInternal, err, message)
}

func WrapInvalidInput(err error, message string) *Envelope {
	return Wrap(CodeInvalidInput, err, message)
}

// EnsureEnvelope normalizes any error into an Envelope. Unknown errors
// become internal errors with a generic client message; the cause stays in
// Wrapped for logging.
func EnsureEnvelope(err error) *Envelope {
	if err == nil {
		return NewInternalError("unexpected nil error")
	}
	var env *Envelope
	if errors.As(err, &env) && env != nil {
		return env
	}
	return WrapInternal(err, "unexpected error")
}

// HTTPStatusFromCode resolves the HTTP status code for an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput, CodeConfigInvalid:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorDetail is the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// logger receives a record for every error response written. Set once at
// startup; nil disables logging.
var logger *zap.Logger

// SetLogger installs the logger used for error responses.
func SetLogger(log *zap.Logger) { logger = log }

// RespondWithError normalizes the supplied error and writes the JSON
// envelope with the matching status code.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	if w == nil {
		return
	}
	env := EnsureEnvelope(err)
	status := HTTPStatusFromCode(env.Code)

	requestID := ""
	if r != nil {
		requestID = middleware.GetRequestID(r.Context())
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}

	logResponse(env, status, requestID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: HTTPErrorDetail{
		Code:      env.Code,
		Message:   env.Message,
		Details:   env.Details,
		RequestID: requestID,
	}})
}

func logResponse(env *Envelope, status int, requestID string) {
	if logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("error_code", env.Code),
		zap.Int("http_status", status),
		zap.String("request_id", requestID),
	}
	if env.Wrapped != nil {
		fields = append(fields, zap.Error(env.Wrapped))
	}
	if status >= http.StatusInternalServerError {
		logger.Error(env.Message, fields...)
		return
	}
	logger.Info(env.Message, fields...)
}
