package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/models"
	"github.com/trackwise/assistant/internal/request"
)

// Recovery converts handler panics into a structured 500 response. Panic
// details are logged server-side only.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic_recovered",
						zap.Any("error", err),
						zap.String("request_id", request.RequestID(r.Context())),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
					)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					resp := models.ChatResponse{
						Status:  models.StatusError,
						Message: "an unexpected error occurred",
						Error: &models.ErrorInfo{
							Code:    models.ErrCodeInternal,
							Message: "an unexpected error occurred",
						},
					}
					_ = json.NewEncoder(w).Encode(resp)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
