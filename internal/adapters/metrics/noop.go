package metrics

import "time"

// NoopSink descarta tudo; usado com métricas desligadas.
type NoopSink struct{}

// NewNoopSink devolve um Sink que não faz nada.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) DecisionRecorded(outcome string, window string) {}
func (n *NoopSink) EvaluationObserved(duration time.Duration)     {}
func (n *NoopSink) StoreError(op string)                          {}
func (n *NoopSink) FailOpenAdmission()                            {}
func (n *NoopSink) ResetPerformed(scope string, removed int)      {}
