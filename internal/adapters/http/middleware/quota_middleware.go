// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/metrics"
	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
	"github.com/JeanGrijp/tryon-quota/internal/core/identity"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
)

const (
	HeaderLimitHourly     = "X-RateLimit-Limit-Hourly"
	HeaderRemainingHourly = "X-RateLimit-Remaining-Hourly"
	HeaderLimitDaily      = "X-RateLimit-Limit-Daily"
	HeaderRemainingDaily  = "X-RateLimit-Remaining-Daily"
)

type decisionKey struct{}

// DecisionFromContext devolve a decisão de cota anexada pelo middleware.
// ok é falso quando a requisição passou em modo fail-open.
func DecisionFromContext(ctx context.Context) (domain.Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(domain.Decision)
	return d, ok
}

func WithDecision(ctx context.Context, d domain.Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

type QuotaConfig struct {
	// FailOpen deixa a requisição passar quando o storage de cota está fora.
	FailOpen bool
	Logger   *slog.Logger
	Metrics  metrics.Sink
}

// NewQuotaMiddleware consome a cota antes do próximo handler. Negado vira 429;
// falha do storage vira 503, ou passa direto com FailOpen.
func NewQuotaMiddleware(limiter ports.RateLimiter, cfg QuotaConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopSink()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientID := identity.FromRequest(r)
			logger := LoggerFromContext(r.Context(), cfg.Logger)

			decision, err := limiter.EvaluateAndAdmit(r.Context(), clientID)
			if err != nil {
				if domain.IsQuotaExceeded(err) {
					writeQuotaExceeded(w, decision)
					return
				}

				if cfg.FailOpen {
					cfg.Metrics.FailOpenAdmission()
					logger.Error("quota check failed, admitting request (fail-open)", "identity", clientID, "error", err)
					next.ServeHTTP(w, r)
					return
				}

				logger.Error("quota check failed, rejecting request", "identity", clientID, "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"error":   "Quota service unavailable",
					"message": "Please try again later.",
				})
				return
			}

			if !decision.Allowed {
				writeQuotaExceeded(w, decision)
				return
			}

			setQuotaHeaders(w.Header(), decision)
			next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), decision)))
		})
	}
}

func setQuotaHeaders(h http.Header, d domain.Decision) {
	h.Set(HeaderLimitHourly, strconv.FormatInt(d.Hourly.Limit, 10))
	h.Set(HeaderRemainingHourly, strconv.FormatInt(d.Hourly.Remaining, 10))
	h.Set(HeaderLimitDaily, strconv.FormatInt(d.Daily.Limit, 10))
	h.Set(HeaderRemainingDaily, strconv.FormatInt(d.Daily.Remaining, 10))
}

func writeQuotaExceeded(w http.ResponseWriter, d domain.Decision) {
	blocked := d.Window(d.Blocking)

	retryAfter := blocked.ResetIn
	if retryAfter <= 0 {
		retryAfter = domain.HourlyTTL
		if d.Blocking == domain.Daily {
			retryAfter = domain.DailyTTL
		}
	}

	setQuotaHeaders(w.Header(), d)
	w.Header().Set("Retry-After", strconv.FormatInt(int64((retryAfter+time.Second-1)/time.Second), 10))
	writeJSON(w, http.StatusTooManyRequests, QuotaExceededResponse{
		Error:      "Rate limit exceeded",
		Message:    exceededMessage(d.Blocking, blocked.Limit),
		Window:     string(d.Blocking),
		Limit:      blocked.Limit,
		Current:    blocked.Used,
		RetryAfter: d.Blocking.RetryHint(),
		RateLimit:  NewRateLimitPayload(d),
	})
}

func exceededMessage(kind domain.WindowKind, limit int64) string {
	if kind == domain.Daily {
		return fmt.Sprintf("You have exceeded the daily rate limit of %d requests per day. Please try again tomorrow.", limit)
	}
	return fmt.Sprintf("You have exceeded the hourly rate limit of %d requests per hour. Please try again later.", limit)
}
