package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implementa Sink com client_golang. Falha de registro só vira log.
type PrometheusSink struct {
	decisionsTotal    *prometheus.CounterVec
	evaluationSeconds prometheus.Histogram
	storeErrorsTotal  *prometheus.CounterVec
	failOpenTotal     prometheus.Counter
	resetsTotal       *prometheus.CounterVec
	countersRemoved   prometheus.Counter
}

// NewPrometheusSink cria e registra os coletores em reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initLimiterMetrics(reg)
	s.initAdminMetrics(reg)
	return s
}

func (s *PrometheusSink) initLimiterMetrics(reg prometheus.Registerer) {
	s.decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tryon_quota_decisions_total",
		Help: "Total number of quota decisions by outcome and blocking window.",
	}, []string{"outcome", "window"})

	s.evaluationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tryon_quota_evaluation_duration_seconds",
		Help:    "Latency of a quota evaluation including the store round trip.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	s.storeErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tryon_quota_store_errors_total",
		Help: "Total number of quota store failures by operation.",
	}, []string{"op"})

	s.failOpenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tryon_quota_fail_open_admissions_total",
		Help: "Requests admitted without a quota check because the store was unavailable.",
	})

	s.register(reg, s.decisionsTotal, "tryon_quota_decisions_total")
	s.register(reg, s.evaluationSeconds, "tryon_quota_evaluation_duration_seconds")
	s.register(reg, s.storeErrorsTotal, "tryon_quota_store_errors_total")
	s.register(reg, s.failOpenTotal, "tryon_quota_fail_open_admissions_total")
}

func (s *PrometheusSink) initAdminMetrics(reg prometheus.Registerer) {
	s.resetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tryon_quota_resets_total",
		Help: "Total number of administrative quota resets by scope.",
	}, []string{"scope"})

	s.countersRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tryon_quota_reset_all_counters_removed_total",
		Help: "Counters removed by reset-all operations.",
	})

	s.register(reg, s.resetsTotal, "tryon_quota_resets_total")
	s.register(reg, s.countersRemoved, "tryon_quota_reset_all_counters_removed_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		slog.Warn("metrics: failed to register collector", "name", name, "error", err)
	}
}

func (s *PrometheusSink) DecisionRecorded(outcome string, window string) {
	if window == "" {
		window = "none"
	}
	s.decisionsTotal.WithLabelValues(outcome, window).Inc()
}

func (s *PrometheusSink) EvaluationObserved(duration time.Duration) {
	s.evaluationSeconds.Observe(duration.Seconds())
}

func (s *PrometheusSink) StoreError(op string) {
	s.storeErrorsTotal.WithLabelValues(op).Inc()
}

func (s *PrometheusSink) FailOpenAdmission() {
	s.failOpenTotal.Inc()
}

func (s *PrometheusSink) ResetPerformed(scope string, removed int) {
	s.resetsTotal.WithLabelValues(scope).Inc()
	if scope == ScopeAll {
		s.countersRemoved.Add(float64(removed))
	}
}
