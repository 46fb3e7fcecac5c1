// Package domain concentra entidades e estruturas centrais do controle de cota.
package domain

import "time"

// UnknownIdentity é usada quando nenhuma identidade pode ser derivada da requisição.
const UnknownIdentity = "unknown"

type WindowKind string

const (
	Hourly WindowKind = "hourly"
	Daily  WindowKind = "daily"
)

// WindowKinds lista todas as janelas rastreadas por identidade.
var WindowKinds = []WindowKind{Hourly, Daily}

// RetryHint devolve a dica legível usada nas respostas de bloqueio.
func (k WindowKind) RetryHint() string {
	switch k {
	case Hourly:
		return "1 hour"
	case Daily:
		return "24 hours"
	default:
		return ""
	}
}

func (k WindowKind) Valid() bool {
	return k == Hourly || k == Daily
}

type Window struct {
	Kind  WindowKind
	Limit int64
	TTL   time.Duration
}

const (
	DefaultHourlyLimit int64 = 10
	DefaultDailyLimit  int64 = 40
	HourlyTTL                = time.Hour
	DailyTTL                 = 24 * time.Hour
)

func HourlyWindow(limit int64) Window {
	return Window{Kind: Hourly, Limit: limit, TTL: HourlyTTL}
}

func DailyWindow(limit int64) Window {
	return Window{Kind: Daily, Limit: limit, TTL: DailyTTL}
}

// Counter é o uso de uma identidade dentro de uma janela fixa.
// Um contador expirado equivale a ausência: Count zero e TTLRemaining igual ao TTL da janela.
type Counter struct {
	Identity     string
	Kind         WindowKind
	Count        int64
	WindowStart  time.Time
	TTLRemaining time.Duration
}

// Admission é o resultado de uma admissão atômica em várias janelas.
// Counters segue a ordem das janelas informadas.
type Admission struct {
	Admitted bool
	Blocking WindowKind
	Counters []Counter
}

type WindowStatus struct {
	Kind      WindowKind    `json:"-"`
	Limit     int64         `json:"limit"`
	Used      int64         `json:"used"`
	Remaining int64         `json:"remaining"`
	ResetIn   time.Duration `json:"-"`
}

func NewWindowStatus(w Window, c Counter) WindowStatus {
	return WindowStatus{
		Kind:      w.Kind,
		Limit:     w.Limit,
		Used:      c.Count,
		Remaining: Remaining(w.Limit, c.Count),
		ResetIn:   c.TTLRemaining,
	}
}

// Remaining calcula limit - used, nunca negativo.
func Remaining(limit, used int64) int64 {
	if used >= limit {
		return 0
	}
	return limit - used
}

// PercentUsed arredonda para duas casas decimais.
func (s WindowStatus) PercentUsed() float64 {
	if s.Limit <= 0 {
		return 0
	}
	pct := float64(s.Used) / float64(s.Limit) * 100
	return float64(int64(pct*100+0.5)) / 100
}

type Decision struct {
	Allowed  bool
	Identity string
	Blocking WindowKind
	Hourly   WindowStatus
	Daily    WindowStatus
}

// Window devolve o status da janela pedida.
func (d Decision) Window(kind WindowKind) WindowStatus {
	if kind == Daily {
		return d.Daily
	}
	return d.Hourly
}

// QuotaStatus é a fotografia administrativa de uma identidade.
type QuotaStatus struct {
	Identity string
	Hourly   WindowStatus
	Daily    WindowStatus
}
