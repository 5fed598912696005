package middleware

import (
	"net/http"

	"fleet-backend/internal/config"

	"github.com/rs/cors"
)

// NewCORS allows the dashboard origins. The bank notifier is server to
// server and never sends an Origin, so CORS does not apply to it.
func NewCORS(cfg *config.Config) func(http.Handler) http.Handler {
	headers := append([]string(nil), cfg.Server.CorsAllowedHeaders...)
	if sig := cfg.Webhook.SignatureHeader; sig != "" && !containsHeader(headers, sig) {
		headers = append(headers, sig)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CorsAllowedOrigins,
		AllowedMethods:   cfg.Server.CorsAllowedMethods,
		AllowedHeaders:   headers,
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	return c.Handler
}

func containsHeader(headers []string, name string) bool {
	for _, h := range headers {
		if http.CanonicalHeaderKey(h) == http.CanonicalHeaderKey(name) {
			return true
		}
	}
	return false
}
