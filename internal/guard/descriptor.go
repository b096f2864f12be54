package guard

import (
	"net/http"
	"strconv"
	"time"
)

// Diagnostic headers attached to every decision on a non-bypassed request.
const (
	HeaderRateLimitType   = "X-RateLimit-Type"
	HeaderLimitMinute     = "X-RateLimit-Limit-Minute"
	HeaderRemainingMinute = "X-RateLimit-Remaining-Minute"
	HeaderLimitHour       = "X-RateLimit-Limit-Hour"
	HeaderRemainingHour   = "X-RateLimit-Remaining-Hour"
	HeaderDDoSProtection  = "X-DDoS-Protection"
	HeaderIPReputation    = "X-IP-Reputation"
	HeaderBlockStatus     = "X-Block-Status"
	HeaderRetryAfter      = "Retry-After"
)

const (
	ddosProtectionActive  = "active"
	blockStatusBlocked    = "blocked"
	blockStatusNotBlocked = "allowed"
)

// Machine-readable denial reasons.
const (
	ReasonBlocked         = "blocked"
	ReasonBurstAttack     = "burst_attack"
	ReasonRateLimitMinute = "rate_limit_minute"
	ReasonRateLimitHour   = "rate_limit_hour"
)

// Request is the admission-control view of an inbound HTTP request. The
// routing layer builds one per request; the engine never touches the
// underlying connection.
type Request struct {
	Method     string
	Path       string
	Header     http.Header
	RemoteAddr string

	// ReceivedAt anchors every window computation for this request. When
	// zero, the controller clock is used.
	ReceivedAt time.Time
}

// UserAgent returns the request's User-Agent header value.
func (r Request) UserAgent() string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get("User-Agent")
}

// Decision is the engine's verdict for one request.
type Decision struct {
	// Allowed is true when the request should proceed to the handler.
	Allowed bool

	// Status is the HTTP status the routing layer should write on denial.
	// It is http.StatusOK for admitted requests.
	Status int

	// ClientKey is the resolved client identity the decision applies to.
	ClientKey string

	// Category is the endpoint category the request was classified into.
	Category Category

	// Reason is a machine-readable denial reason, empty when allowed.
	Reason string

	// RetryAfter is how long the client should wait before retrying; zero
	// when allowed.
	RetryAfter time.Duration

	// Reputation is the client's score after this request was judged.
	Reputation int

	// Headers are the diagnostic headers to attach to the response.
	Headers map[string]string

	// Bypassed marks requests admitted without tracking (bypass paths and
	// allowlisted clients).
	Bypassed bool
}

// DenialBody is the JSON payload written with a 429 response.
type DenialBody struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// Body builds the denial payload for a denied decision, nil otherwise.
func (d Decision) Body() *DenialBody {
	if d.Allowed {
		return nil
	}
	secs := retrySeconds(d.RetryAfter)
	body := &DenialBody{RetryAfterSeconds: secs}
	switch d.Reason {
	case ReasonBlocked, ReasonBurstAttack:
		body.Error = "temporarily_blocked"
		body.Message = "Access temporarily blocked due to suspicious activity. Try again in " +
			strconv.Itoa(secs) + "s."
	case ReasonRateLimitMinute:
		body.Error = "rate_limit_exceeded"
		body.Message = "Too many requests for " + string(d.Category) + " endpoints: per-minute limit reached."
	case ReasonRateLimitHour:
		body.Error = "rate_limit_exceeded"
		body.Message = "Too many requests for " + string(d.Category) + " endpoints: per-hour limit reached."
	default:
		body.Error = "request_denied"
		body.Message = "Request denied."
	}
	return body
}
