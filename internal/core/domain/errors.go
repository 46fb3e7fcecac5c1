package domain

import (
	"errors"
	"fmt"
)

var (
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrStoreUnavailable = errors.New("quota store unavailable")
	ErrInvalidIdentity  = errors.New("identity is required")
)

// QuotaExceededError carrega a janela que bloqueou a requisição e o uso atual.
type QuotaExceededError struct {
	Window WindowKind
	Limit  int64
	Used   int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %d/%d, retry in %s", e.Window, e.Used, e.Limit, e.Window.RetryHint())
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// RetryAfter devolve a dica de espera para a janela bloqueante.
func (e *QuotaExceededError) RetryAfter() string {
	return e.Window.RetryHint()
}

func NewQuotaExceeded(d Decision) *QuotaExceededError {
	status := d.Window(d.Blocking)
	return &QuotaExceededError{Window: d.Blocking, Limit: status.Limit, Used: status.Used}
}

func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// StoreUnavailable envolve uma falha de transporte do backend.
func StoreUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
