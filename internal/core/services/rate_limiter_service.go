package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/metrics"
	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
)

// Policy define como as duas janelas são consumidas numa admissão.
type Policy string

const (
	// PolicyAtomic verifica as duas janelas e só incrementa se ambas tiverem folga.
	PolicyAtomic Policy = "atomic"
	// PolicySequential incrementa a janela horária e depois a diária, sem desfazer
	// o incremento horário quando a diária bloqueia.
	PolicySequential Policy = "sequential"
)

// ParsePolicy converte QUOTA_POLICY; vazio vale atomic.
func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyAtomic:
		return PolicyAtomic, nil
	case PolicySequential:
		return PolicySequential, nil
	default:
		return "", fmt.Errorf("unknown admission policy: %q", raw)
	}
}

// Config agrega os limites e colaboradores usados pelos serviços de cota.
type Config struct {
	HourlyLimit int64
	DailyLimit  int64
	Policy      Policy
	Logger      *slog.Logger
	Metrics     metrics.Sink
}

func (c Config) windows() (domain.Window, domain.Window) {
	return domain.HourlyWindow(c.HourlyLimit), domain.DailyWindow(c.DailyLimit)
}

func (c Config) withDefaults() Config {
	if c.Policy == "" {
		c.Policy = PolicyAtomic
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewNoopSink()
	}
	return c
}

func (c Config) validate() error {
	if c.HourlyLimit <= 0 || c.DailyLimit <= 0 {
		return fmt.Errorf("hourly and daily limits must be positive")
	}
	if c.Policy != PolicyAtomic && c.Policy != PolicySequential {
		return fmt.Errorf("unknown admission policy: %q", c.Policy)
	}
	return nil
}

// RateLimiterService decide a admissão de cada requisição nas janelas horária e diária.
type RateLimiterService struct {
	storage ports.QuotaStore
	hourly  domain.Window
	daily   domain.Window
	policy  Policy
	logger  *slog.Logger
	metrics metrics.Sink
}

var _ ports.RateLimiter = (*RateLimiterService)(nil)

// NewRateLimiterService cria o serviço de cota e valida a configuração.
func NewRateLimiterService(storage ports.QuotaStore, cfg Config) (*RateLimiterService, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	hourly, daily := cfg.windows()
	return &RateLimiterService{
		storage: storage,
		hourly:  hourly,
		daily:   daily,
		policy:  cfg.Policy,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// EvaluateAndAdmit consome uma unidade das duas janelas quando ambas têm folga.
// Quando nega, devolve a decisão junto de um *domain.QuotaExceededError.
// Falhas do storage voltam como domain.ErrStoreUnavailable.
func (s *RateLimiterService) EvaluateAndAdmit(ctx context.Context, identity string) (domain.Decision, error) {
	start := time.Now()
	defer func() { s.metrics.EvaluationObserved(time.Since(start)) }()

	identity = normalizeIdentity(identity)

	var (
		decision domain.Decision
		err      error
	)
	if s.policy == PolicySequential {
		decision, err = s.admitSequential(ctx, identity)
	} else {
		decision, err = s.admitAtomic(ctx, identity)
	}
	if err != nil {
		err = asStoreUnavailable("admit", err)
		s.metrics.StoreError("admit")
		s.logger.Error("quota store unavailable", "identity", identity, "error", err)
		return domain.Decision{Identity: identity}, err
	}

	if !decision.Allowed {
		s.metrics.DecisionRecorded(metrics.OutcomeDenied, string(decision.Blocking))
		blocked := decision.Window(decision.Blocking)
		s.logger.Warn("quota exceeded",
			"identity", identity,
			"window", decision.Blocking,
			"used", blocked.Used,
			"limit", blocked.Limit,
		)
		return decision, domain.NewQuotaExceeded(decision)
	}

	s.metrics.DecisionRecorded(metrics.OutcomeAllowed, "")
	s.logger.Debug("quota admitted",
		"identity", identity,
		"hourly_used", decision.Hourly.Used,
		"daily_used", decision.Daily.Used,
	)
	return decision, nil
}

// Peek avalia a cota sem consumir nada.
func (s *RateLimiterService) Peek(ctx context.Context, identity string) (domain.Decision, error) {
	identity = normalizeIdentity(identity)

	counters, err := s.storage.Snapshot(ctx, identity, s.hourly, s.daily)
	if err != nil {
		s.metrics.StoreError("snapshot")
		s.logger.Error("quota store unavailable", "identity", identity, "error", err)
		return domain.Decision{Identity: identity}, asStoreUnavailable("snapshot", err)
	}

	decision := domain.Decision{
		Allowed:  true,
		Identity: identity,
		Hourly:   domain.NewWindowStatus(s.hourly, counters[0]),
		Daily:    domain.NewWindowStatus(s.daily, counters[1]),
	}
	switch {
	case decision.Hourly.Used >= s.hourly.Limit:
		decision.Allowed, decision.Blocking = false, domain.Hourly
	case decision.Daily.Used >= s.daily.Limit:
		decision.Allowed, decision.Blocking = false, domain.Daily
	}
	return decision, nil
}

func (s *RateLimiterService) admitAtomic(ctx context.Context, identity string) (domain.Decision, error) {
	adm, err := s.storage.Admit(ctx, identity, s.hourly, s.daily)
	if err != nil {
		return domain.Decision{}, err
	}
	return domain.Decision{
		Allowed:  adm.Admitted,
		Identity: identity,
		Blocking: adm.Blocking,
		Hourly:   domain.NewWindowStatus(s.hourly, adm.Counters[0]),
		Daily:    domain.NewWindowStatus(s.daily, adm.Counters[1]),
	}, nil
}

func (s *RateLimiterService) admitSequential(ctx context.Context, identity string) (domain.Decision, error) {
	hourlyCounter, admitted, err := s.storage.IncrementIfUnder(ctx, identity, s.hourly)
	if err != nil {
		return domain.Decision{}, err
	}
	if !admitted {
		dailyCounter, err := s.storage.Get(ctx, identity, s.daily)
		if err != nil {
			return domain.Decision{}, err
		}
		return domain.Decision{
			Identity: identity,
			Blocking: domain.Hourly,
			Hourly:   domain.NewWindowStatus(s.hourly, hourlyCounter),
			Daily:    domain.NewWindowStatus(s.daily, dailyCounter),
		}, nil
	}

	// O incremento horário acima não é desfeito se a janela diária bloquear.
	dailyCounter, admitted, err := s.storage.IncrementIfUnder(ctx, identity, s.daily)
	if err != nil {
		return domain.Decision{}, err
	}

	decision := domain.Decision{
		Allowed:  admitted,
		Identity: identity,
		Hourly:   domain.NewWindowStatus(s.hourly, hourlyCounter),
		Daily:    domain.NewWindowStatus(s.daily, dailyCounter),
	}
	if !admitted {
		decision.Blocking = domain.Daily
	}
	return decision, nil
}

func normalizeIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.UnknownIdentity
	}
	return identity
}

func asStoreUnavailable(op string, err error) error {
	if domain.IsStoreUnavailable(err) {
		return err
	}
	return domain.StoreUnavailable(op, err)
}
