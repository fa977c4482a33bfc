package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

var devCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// CORS allows the configured storefront origin plus local dev servers.
func CORS(frontendURL string, dev bool) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   corsOrigins(frontendURL, dev),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

func corsOrigins(frontendURL string, dev bool) []string {
	var origins []string
	if origin := strings.TrimRight(strings.TrimSpace(frontendURL), "/"); origin != "" {
		origins = append(origins, origin)
	}
	if dev || len(origins) == 0 {
		origins = append(origins, devCORSOrigins...)
	}
	return origins
}
