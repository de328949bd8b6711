package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/trackwise/assistant/internal/models"
)

// writeJSON sends a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeError sends a structured error in the chat response envelope
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.ChatResponse{
		Status:  models.StatusError,
		Message: message,
		Error:   &models.ErrorInfo{Code: code, Message: message},
	})
}

// httpStatusFor maps pipeline error codes onto HTTP statuses. The chat
// endpoint always carries the full structured response; the status code is
// a convenience for plain HTTP clients.
func httpStatusFor(resp *models.ChatResponse) int {
	if resp.Status == models.StatusOK {
		return http.StatusOK
	}
	if resp.Error == nil {
		return http.StatusInternalServerError
	}
	switch resp.Error.Code {
	case models.ErrCodeValidation:
		return http.StatusBadRequest
	case models.ErrCodeAuth:
		return http.StatusUnauthorized
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case models.ErrCodeSessionGone, models.ErrCodeNotFound:
		return http.StatusNotFound
	case models.ErrCodeAccessDenied, models.ErrCodeActionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// setRateLimitHeaders mirrors the rate limit payload into headers
func setRateLimitHeaders(w http.ResponseWriter, rl *models.RateLimitInfo) {
	if rl == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit-Minute", strconv.Itoa(rl.LimitMinute))
	w.Header().Set("X-RateLimit-Limit-Hour", strconv.Itoa(rl.LimitHour))
	w.Header().Set("X-RateLimit-Remaining-Minute", strconv.Itoa(rl.RemainingMinute))
	w.Header().Set("X-RateLimit-Remaining-Hour", strconv.Itoa(rl.RemainingHour))
	if rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter+0.5)))
	}
}
