// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
)

// QuotaStore guarda um contador por (identidade, janela).
// Toda mutação de contador passa por IncrementIfUnder, Admit, Reset ou ResetAll.
type QuotaStore interface {
	Get(ctx context.Context, identity string, window domain.Window) (domain.Counter, error)
	IncrementIfUnder(ctx context.Context, identity string, window domain.Window) (domain.Counter, bool, error)
	Admit(ctx context.Context, identity string, windows ...domain.Window) (domain.Admission, error)
	Reset(ctx context.Context, identity string) error
	ResetAll(ctx context.Context) (int, error)
	Snapshot(ctx context.Context, identity string, windows ...domain.Window) ([]domain.Counter, error)
	Ping(ctx context.Context) error
}
