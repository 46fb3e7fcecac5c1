package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/http/middleware"
	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
)

type WindowReport struct {
	Limit       int64   `json:"limit"`
	Used        int64   `json:"used"`
	Remaining   int64   `json:"remaining"`
	PercentUsed float64 `json:"percent_used"`
}

type StatusResponse struct {
	Identity string       `json:"identity"`
	Hourly   WindowReport `json:"hourly"`
	Daily    WindowReport `json:"daily"`
}

func newWindowReport(s domain.WindowStatus) WindowReport {
	return WindowReport{
		Limit:       s.Limit,
		Used:        s.Used,
		Remaining:   s.Remaining,
		PercentUsed: s.PercentUsed(),
	}
}

// AdminHandler expõe consulta e reset de cotas por identidade.
type AdminHandler struct {
	admin  ports.QuotaAdmin
	logger *slog.Logger
}

// NewAdminHandler expõe status e reset de cota via HTTP.
func NewAdminHandler(admin ports.QuotaAdmin, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{admin: admin, logger: logger}
}

// Routes monta as rotas relativas a /admin/quota.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Get("/{identity}", h.Status)
	r.Delete("/{identity}", h.Reset)
	r.Delete("/", h.ResetAll)
}

func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.admin.Status(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, StatusResponse{
		Identity: st.Identity,
		Hourly:   newWindowReport(st.Hourly),
		Daily:    newWindowReport(st.Daily),
	})
}

func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")
	if err := h.admin.Reset(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"identity": id, "reset": true})
}

func (h *AdminHandler) ResetAll(w http.ResponseWriter, r *http.Request) {
	removed, err := h.admin.ResetAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	middleware.LoggerFromContext(r.Context(), h.logger).Info("all quotas reset over http", "removed", removed)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
