package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

type loggerKey struct{}

// NewRequestIDMiddleware garante um X-Request-ID e anexa um logger com esse id ao contexto.
func NewRequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}

			w.Header().Set(HeaderRequestID, requestID)
			ctx := context.WithValue(r.Context(), loggerKey{}, logger.With("request_id", requestID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext devolve o logger da requisição ou fallback.
func LoggerFromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}
