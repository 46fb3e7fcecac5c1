// Package router monta o roteador chi com a API de try-on, administração e observabilidade.
package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/http/handlers"
	httpMiddleware "github.com/JeanGrijp/tryon-quota/internal/adapters/http/middleware"
	"github.com/JeanGrijp/tryon-quota/internal/adapters/metrics"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
)

type Deps struct {
	Limiter   ports.RateLimiter
	Admin     ports.QuotaAdmin
	Store     handlers.Pinger
	Generator handlers.Generator
	Logger    *slog.Logger
	Metrics   metrics.Sink

	FailOpen bool
	// AdminToken vazio deixa /admin/quota fora do roteador.
	AdminToken string
	// MetricsHandler nil desliga a rota de métricas.
	MetricsHandler http.Handler
	MetricsPath    string
}

// New monta o roteador. /admin/quota só existe quando AdminToken foi configurado.
func New(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.MetricsPath == "" {
		d.MetricsPath = "/metrics"
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(httpMiddleware.NewRequestIDMiddleware(d.Logger))

	r.Get("/healthz", handlers.HealthHandler(d.Store))
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, d.MetricsPath, d.MetricsHandler)
	}

	r.Route("/v2", func(r chi.Router) {
		r.Get("/quota", handlers.NewQuotaHandler(d.Limiter, d.Logger).ServeHTTP)
		r.With(httpMiddleware.NewQuotaMiddleware(d.Limiter, httpMiddleware.QuotaConfig{
			FailOpen: d.FailOpen,
			Logger:   d.Logger,
			Metrics:  d.Metrics,
		})).Method(http.MethodPost, "/tryon", handlers.NewTryOnHandler(d.Generator, d.Logger))
	})

	if d.AdminToken != "" && d.Admin != nil {
		r.Route("/admin/quota", func(r chi.Router) {
			r.Use(httpMiddleware.NewAdminAuthMiddleware(d.AdminToken))
			handlers.NewAdminHandler(d.Admin, d.Logger).Routes(r)
		})
	}

	return r
}
