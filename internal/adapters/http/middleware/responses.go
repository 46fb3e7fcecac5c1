package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
)

// RateLimitPayload é o bloco "rate_limit" presente nas respostas da rota protegida.
type RateLimitPayload struct {
	Hourly domain.WindowStatus `json:"hourly"`
	Daily  domain.WindowStatus `json:"daily"`
}

func NewRateLimitPayload(d domain.Decision) RateLimitPayload {
	return RateLimitPayload{Hourly: d.Hourly, Daily: d.Daily}
}

type QuotaExceededResponse struct {
	Error      string           `json:"error"`
	Message    string           `json:"message"`
	Window     string           `json:"window"`
	Limit      int64            `json:"limit"`
	Current    int64            `json:"current"`
	RetryAfter string           `json:"retry_after"`
	RateLimit  RateLimitPayload `json:"rate_limit"`
}

// WriteJSON é exportado para os handlers do mesmo adaptador HTTP.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
