// Package handlers agrupa os handlers HTTP da API de try-on e da administração de cotas.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/http/middleware"
	"github.com/JeanGrijp/tryon-quota/internal/core/identity"
)

// ErrGeneratorUnavailable indica que nenhum gerador de imagens foi configurado.
var ErrGeneratorUnavailable = errors.New("try-on generator unavailable")

type TryOnResult struct {
	ImageURL string `json:"image_url"`
}

// Generator executa a geração de imagem por trás da cota.
type Generator interface {
	Generate(ctx context.Context, r *http.Request) (TryOnResult, error)
}

type GeneratorFunc func(ctx context.Context, r *http.Request) (TryOnResult, error)

func (f GeneratorFunc) Generate(ctx context.Context, r *http.Request) (TryOnResult, error) {
	return f(ctx, r)
}

type TryOnResponse struct {
	Success   bool                        `json:"success"`
	ImageURL  string                      `json:"image_url"`
	Message   string                      `json:"message"`
	RateLimit *middleware.RateLimitPayload `json:"rate_limit,omitempty"`
}

type TryOnHandler struct {
	generator Generator
	logger    *slog.Logger
}

// NewTryOnHandler gera a imagem depois que a cota já foi consumida.
func NewTryOnHandler(generator Generator, logger *slog.Logger) *TryOnHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TryOnHandler{generator: generator, logger: logger}
}

// ServeHTTP espera rodar depois do middleware de cota. A unidade de cota
// já foi consumida quando a geração falha.
func (h *TryOnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromContext(r.Context(), h.logger)
	clientID := identity.FromRequest(r)

	if h.generator == nil {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, errorBody("Try-on generation unavailable", ErrGeneratorUnavailable.Error()))
		return
	}

	result, err := h.generator.Generate(r.Context(), r)
	if err != nil {
		logger.Error("try-on generation failed", "identity", clientID, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, ErrGeneratorUnavailable) {
			status = http.StatusServiceUnavailable
		}
		middleware.WriteJSON(w, status, errorBody("Try-on generation failed", err.Error()))
		return
	}

	resp := TryOnResponse{
		Success:  true,
		ImageURL: result.ImageURL,
		Message:  "Try-on image generated successfully",
	}
	if d, ok := middleware.DecisionFromContext(r.Context()); ok {
		payload := middleware.NewRateLimitPayload(d)
		resp.RateLimit = &payload
		logger.Info("try-on served",
			"identity", clientID,
			"hourly_used", d.Hourly.Used,
			"hourly_limit", d.Hourly.Limit,
			"daily_used", d.Daily.Used,
			"daily_limit", d.Daily.Limit,
		)
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

func errorBody(title, message string) map[string]string {
	return map[string]string{"error": title, "message": message}
}
