package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows any origin, like the dashboard clients expect, and answers
// preflight requests itself. Wrap the whole router with it: preflights
// never match a route.
func CORS(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", CorrelationHeader},
		ExposedHeaders: []string{CorrelationHeader},
	}).Handler(next)
}
