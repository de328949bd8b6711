package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// CORS builds the CORS middleware from a comma-separated origin list.
// Empty input allows only the local development frontend.
func CORS(frontendURLs string) func(http.Handler) http.Handler {
	origins := []string{"http://localhost:3000"}
	for _, o := range strings.Split(frontendURLs, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "X-RateLimit-Remaining-Minute", "X-RateLimit-Remaining-Hour"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler
}
