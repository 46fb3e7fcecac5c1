// Package storage escolhe e inicializa o backend de cota configurado.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/storage/memory"
	"github.com/JeanGrijp/tryon-quota/internal/adapters/storage/postgres"
	redisstorage "github.com/JeanGrijp/tryon-quota/internal/adapters/storage/redis"
	"github.com/JeanGrijp/tryon-quota/internal/config"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
)

const (
	TypeMemory   = "memory"
	TypeRedis    = "redis"
	TypePostgres = "postgres"
)

// Open devolve o store e uma função de encerramento que para as varreduras
// em segundo plano e fecha conexões.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (ports.QuotaStore, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Type {
	case TypeMemory, "":
		store := memory.New()
		stop := store.StartCleanup(cfg.CleanupInterval)
		logger.Info("quota store ready", "type", TypeMemory, "cleanup_interval", cfg.CleanupInterval)
		return store, stop, nil

	case TypeRedis:
		store, err := redisstorage.New(redisstorage.Config{
			Addr:      cfg.Redis.Addr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("quota store ready", "type", TypeRedis, "addr", cfg.Redis.Addr())
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close redis storage", "error", err)
			}
		}, nil

	case TypePostgres:
		store, err := postgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		stop := sweep(cfg.CleanupInterval, logger, store.Cleanup)
		logger.Info("quota store ready", "type", TypePostgres, "cleanup_interval", cfg.CleanupInterval)
		return store, func() {
			stop()
			if err := store.Close(); err != nil {
				logger.Error("failed to close postgres storage", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// sweep chama cleanup a cada interval até a função devolvida ser chamada.
func sweep(interval time.Duration, logger *slog.Logger, cleanup func(context.Context) (int, error)) func() {
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := cleanup(ctx)
				if err != nil {
					logger.Warn("expired counter sweep failed", "error", err)
					continue
				}
				if removed > 0 {
					logger.Debug("expired counters removed", "removed", removed)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
