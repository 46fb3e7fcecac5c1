// Package metrics expõe os contadores operacionais do controle de cota.
package metrics

import "time"

// Sink registra as métricas da cota. Nenhum método bloqueia nem devolve erro.
type Sink interface {
	// limitador
	DecisionRecorded(outcome string, window string)
	EvaluationObserved(duration time.Duration)
	StoreError(op string)
	FailOpenAdmission()

	// administração
	ResetPerformed(scope string, removed int)
}

// Resultados aceitos por DecisionRecorded.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
)

// Escopos aceitos por ResetPerformed.
const (
	ScopeIdentity = "identity"
	ScopeAll      = "all"
)
