package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/metrics"
	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
)

// AdminService inspeciona e zera cotas fora do caminho das requisições.
// Não passa pelo RateLimiterService e nunca incrementa contadores.
type AdminService struct {
	storage ports.QuotaStore
	hourly  domain.Window
	daily   domain.Window
	logger  *slog.Logger
	metrics metrics.Sink
}

var _ ports.QuotaAdmin = (*AdminService)(nil)

// NewAdminService cria o serviço administrativo com os mesmos limites do limitador.
func NewAdminService(storage ports.QuotaStore, cfg Config) (*AdminService, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	hourly, daily := cfg.windows()
	return &AdminService{
		storage: storage,
		hourly:  hourly,
		daily:   daily,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// Status lê as duas janelas da identidade sem consumir cota.
func (a *AdminService) Status(ctx context.Context, identity string) (domain.QuotaStatus, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.QuotaStatus{}, domain.ErrInvalidIdentity
	}

	counters, err := a.storage.Snapshot(ctx, identity, a.hourly, a.daily)
	if err != nil {
		a.metrics.StoreError("snapshot")
		return domain.QuotaStatus{}, asStoreUnavailable("snapshot", err)
	}

	return domain.QuotaStatus{
		Identity: identity,
		Hourly:   domain.NewWindowStatus(a.hourly, counters[0]),
		Daily:    domain.NewWindowStatus(a.daily, counters[1]),
	}, nil
}

// Reset apaga as duas janelas da identidade. Zerar quem não tem contador não é erro.
func (a *AdminService) Reset(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.ErrInvalidIdentity
	}

	if err := a.storage.Reset(ctx, identity); err != nil {
		a.metrics.StoreError("reset")
		a.logger.Error("quota reset failed", "identity", identity, "error", err)
		return asStoreUnavailable("reset", err)
	}

	a.metrics.ResetPerformed(metrics.ScopeIdentity, len(domain.WindowKinds))
	a.logger.Info("quota reset", "identity", identity)
	return nil
}

// ResetAll apaga todos os contadores e devolve quantos foram removidos.
func (a *AdminService) ResetAll(ctx context.Context) (int, error) {
	removed, err := a.storage.ResetAll(ctx)
	if err != nil {
		a.metrics.StoreError("reset_all")
		a.logger.Error("quota reset all failed", "removed", removed, "error", err)
		return removed, asStoreUnavailable("reset all", err)
	}

	a.metrics.ResetPerformed(metrics.ScopeAll, removed)
	a.logger.Info("quota reset all", "removed", removed)
	return removed, nil
}

// WriteStatus escreve o relatório legível usado pelo quotactl.
func WriteStatus(w io.Writer, st domain.QuotaStatus) error {
	rule := strings.Repeat("=", 60)
	_, err := fmt.Fprintf(w,
		"\nQuota status for identity: %s\n%s\n%s\n\n%s\n%s\n",
		st.Identity,
		rule,
		formatWindow("Hourly", st.Hourly),
		formatWindow("Daily", st.Daily),
		rule,
	)
	return err
}

func formatWindow(label string, s domain.WindowStatus) string {
	return fmt.Sprintf("%s limit: %d/%d (%.2f%% used)\n  Remaining: %d requests",
		label, s.Used, s.Limit, s.PercentUsed(), s.Remaining)
}
