package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/trackwise/assistant/internal/request"
)

// RequestIDHeader is the correlation header honored on ingress and always
// set on egress
const RequestIDHeader = "X-Request-ID"

// RequestID attaches a correlation id to the context and echoes it in the
// response. An inbound id is trusted as-is so callers can trace across
// services; absent one, a fresh UUID is minted.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := request.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
