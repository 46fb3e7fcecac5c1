package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/http/middleware"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responde 200 enquanto o storage de cota responde ao ping.
func HealthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
