// Package middleware holds the HTTP middleware chain for the assistant
// API: authentication, correlation ids, logging, recovery, and the
// transport-level guards (size, content type, timeout, per-IP limiting).
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/models"
	"github.com/trackwise/assistant/internal/request"
	"github.com/trackwise/assistant/internal/services/auth"
)

// Auth validates the bearer token and attaches the principal to the
// request context. Identity comes entirely from the token; there is no
// user table to consult.
func Auth(verifier *auth.Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				respondAuthError(w, "missing Authorization header")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondAuthError(w, "Authorization header must be a bearer token")
				return
			}

			claims, err := verifier.Verify(r.Context(), parts[1])
			if err != nil {
				logger.Warn("token_verification_failed", zap.Error(err))
				respondAuthError(w, "invalid or expired token")
				return
			}

			user := auth.UserFromClaims(claims)
			ctx := request.WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	resp := models.ChatResponse{
		Status:  models.StatusError,
		Message: message,
		Error:   &models.ErrorInfo{Code: models.ErrCodeAuth, Message: message},
	}
	_ = json.NewEncoder(w).Encode(resp)
}
