package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/http/middleware"
	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
	"github.com/JeanGrijp/tryon-quota/internal/core/identity"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
)

type QuotaResponse struct {
	Identity  string                      `json:"identity"`
	Allowed   bool                        `json:"allowed"`
	Blocking  string                      `json:"blocking,omitempty"`
	RateLimit middleware.RateLimitPayload `json:"rate_limit"`
}

// QuotaHandler mostra a cota do próprio chamador sem consumi-la.
type QuotaHandler struct {
	limiter ports.RateLimiter
	logger  *slog.Logger
}

// NewQuotaHandler responde o estado da cota do chamador sem consumir nada.
func NewQuotaHandler(limiter ports.RateLimiter, logger *slog.Logger) *QuotaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaHandler{limiter: limiter, logger: logger}
}

func (h *QuotaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d, err := h.limiter.Peek(r.Context(), identity.FromRequest(r))
	if err != nil {
		middleware.LoggerFromContext(r.Context(), h.logger).Warn("quota peek failed", "error", err)
		writeServiceError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, QuotaResponse{
		Identity:  d.Identity,
		Allowed:   d.Allowed,
		Blocking:  string(d.Blocking),
		RateLimit: middleware.NewRateLimitPayload(d),
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsStoreUnavailable(err):
		middleware.WriteJSON(w, http.StatusServiceUnavailable, errorBody("Quota service unavailable", "Please try again later."))
	case errors.Is(err, domain.ErrInvalidIdentity):
		middleware.WriteJSON(w, http.StatusBadRequest, errorBody("Invalid identity", err.Error()))
	default:
		middleware.WriteJSON(w, http.StatusInternalServerError, errorBody("Internal error", err.Error()))
	}
}
