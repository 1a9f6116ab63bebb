// Package shield provides the HTTP middleware stack of the calculator API:
// request tracing with a per-request logger, security headers, body limits,
// CORS for the external front-end (go-chi/cors), and HEAD handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(shield.DefaultOrigins) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns the standard middleware stack, outermost first:
// Recoverer → HeadToGet → CORS → SecurityHeaders → MaxBody → TraceID.
func DefaultStack(origins []string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.Recoverer,
		HeadToGet,
		CORS(origins),
		SecurityHeaders(DefaultHeaders()),
		MaxBody(1 << 20),
		TraceID,
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
