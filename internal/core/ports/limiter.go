// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
)

type RateLimiter interface {
	EvaluateAndAdmit(ctx context.Context, identity string) (domain.Decision, error)
	Peek(ctx context.Context, identity string) (domain.Decision, error)
}

type QuotaAdmin interface {
	Status(ctx context.Context, identity string) (domain.QuotaStatus, error)
	Reset(ctx context.Context, identity string) error
	ResetAll(ctx context.Context) (int, error)
}
