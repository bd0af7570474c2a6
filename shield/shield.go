// Package shield provides the HTTP middleware used by the screenright
// collector: security headers, body limits, request tracing and HEAD
// handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(32<<20, logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultAPIStack returns the standard middleware stack for a JSON/upload
// API. Middleware is ordered: HeadToGet → SecurityHeaders → MaxBody → TraceID.
// Per-request log lines go to logger.
func DefaultAPIStack(maxBody int64, logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(maxBody),
		TraceID(logger),
	}
}
