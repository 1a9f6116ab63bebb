package shield

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// DefaultOrigins allows every origin.
var DefaultOrigins = []string{"*"}

// CORS returns go-chi/cors middleware for the calculator API. origins may
// contain "*" to allow any origin; an empty list means DefaultOrigins.
// Preflight requests are answered directly and never reach the router.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", TraceHeader},
		ExposedHeaders: []string{TraceHeader},
		MaxAge:         600,
	})
}

// ParseOrigins splits a comma-separated origin list, dropping blanks.
func ParseOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
