package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var (
	_ Sink = (*PrometheusSink)(nil)
	_ Sink = (*NoopSink)(nil)
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusSink(reg), reg
}

func getCounterVecValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m.GetLabel(), labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func TestPrometheusSink_Decisions(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.DecisionRecorded(OutcomeAllowed, "")
	sink.DecisionRecorded(OutcomeAllowed, "")
	sink.DecisionRecorded(OutcomeDenied, "hourly")

	if got := getCounterVecValue(t, reg, "tryon_quota_decisions_total", map[string]string{"outcome": "allowed", "window": "none"}); got != 2 {
		t.Errorf("expected 2 allowed decisions, got %v", got)
	}
	if got := getCounterVecValue(t, reg, "tryon_quota_decisions_total", map[string]string{"outcome": "denied", "window": "hourly"}); got != 1 {
		t.Errorf("expected 1 hourly denial, got %v", got)
	}
}

func TestPrometheusSink_StoreErrorsAndFailOpen(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.StoreError("admit")
	sink.FailOpenAdmission()
	sink.EvaluationObserved(3 * time.Millisecond)

	if got := getCounterVecValue(t, reg, "tryon_quota_store_errors_total", map[string]string{"op": "admit"}); got != 1 {
		t.Errorf("expected 1 store error, got %v", got)
	}
	if got := getCounterVecValue(t, reg, "tryon_quota_fail_open_admissions_total", map[string]string{}); got != 1 {
		t.Errorf("expected 1 fail-open admission, got %v", got)
	}
}

func TestPrometheusSink_Resets(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.ResetPerformed(ScopeIdentity, 2)
	sink.ResetPerformed(ScopeAll, 6)

	if got := getCounterVecValue(t, reg, "tryon_quota_resets_total", map[string]string{"scope": "identity"}); got != 1 {
		t.Errorf("expected 1 identity reset, got %v", got)
	}
	if got := getCounterVecValue(t, reg, "tryon_quota_reset_all_counters_removed_total", map[string]string{}); got != 6 {
		t.Errorf("expected 6 removed counters, got %v", got)
	}
}

func TestPrometheusSink_DuplicateRegistrationDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusSink(reg)
	sink := NewPrometheusSink(reg)

	sink.DecisionRecorded(OutcomeAllowed, "")
	sink.ResetPerformed(ScopeAll, 1)
}
