package models

// Response statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error codes returned in the structured error payload
const (
	ErrCodeValidation   = "validation_error"
	ErrCodeAuth         = "auth_error"
	ErrCodeRateLimited  = "rate_limit_exceeded"
	ErrCodeSessionGone  = "session_not_found"
	ErrCodeNotFound     = "entity_not_found"
	ErrCodeAccessDenied = "entity_access_denied"
	ErrCodeActionDenied = "action_denied"
	ErrCodeInternal     = "internal_error"
)

// ErrorInfo is the structured error payload attached to failed responses
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// RetryAfter is seconds until the caller may retry, set for rate
	// limit denials
	RetryAfter float64 `json:"retry_after,omitempty"`
}

// RateLimitInfo reports remaining tokens for both windows. It is attached
// to every response regardless of outcome.
type RateLimitInfo struct {
	LimitMinute     int     `json:"limit_minute"`
	LimitHour       int     `json:"limit_hour"`
	RemainingMinute int     `json:"remaining_minute"`
	RemainingHour   int     `json:"remaining_hour"`
	RetryAfter      float64 `json:"retry_after,omitempty"`
}

// ResponseMeta describes how the pipeline handled the request
type ResponseMeta struct {
	RequestID        string            `json:"request_id,omitempty"`
	SessionID        string            `json:"session_id,omitempty"`
	IntentType       IntentType        `json:"intent_type,omitempty"`
	Confidence       float64           `json:"confidence,omitempty"`
	UsedFallback     bool              `json:"used_fallback,omitempty"`
	ResolvedEntities []ExtractedEntity `json:"resolved_entities,omitempty"`
	DurationMS       int64             `json:"duration_ms"`
}

// ChatResponse is the terminal response for one pipeline run
type ChatResponse struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Data      any            `json:"data,omitempty"`
	Action    *ActionResult  `json:"action,omitempty"`
	Error     *ErrorInfo     `json:"error,omitempty"`
	RateLimit *RateLimitInfo `json:"rate_limit,omitempty"`
	Meta      ResponseMeta   `json:"meta"`
}
