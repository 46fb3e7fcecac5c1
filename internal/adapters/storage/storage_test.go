package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/storage/memory"
	"github.com/JeanGrijp/tryon-quota/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_Memory(t *testing.T) {
	store, closeFn, err := Open(context.Background(), config.StorageConfig{Type: TypeMemory, CleanupInterval: time.Minute}, quietLogger())
	require.NoError(t, err)
	defer closeFn()

	_, ok := store.(*memory.Storage)
	assert.True(t, ok)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpen_Unsupported(t *testing.T) {
	_, _, err := Open(context.Background(), config.StorageConfig{Type: "memcached"}, quietLogger())
	assert.ErrorContains(t, err, "unsupported storage type")
}

func TestOpen_PostgresWithoutDSN(t *testing.T) {
	_, _, err := Open(context.Background(), config.StorageConfig{Type: TypePostgres}, quietLogger())
	assert.Error(t, err)
}

func TestSweep_RunsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := sweep(5*time.Millisecond, quietLogger(), func(context.Context) (int, error) {
		if calls.Add(1)%2 == 0 {
			return 0, errors.New("transient")
		}
		return 1, nil
	})

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	stop()

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestSweep_DisabledInterval(t *testing.T) {
	stop := sweep(0, quietLogger(), func(context.Context) (int, error) {
		t.Fatal("cleanup should not run")
		return 0, nil
	})
	stop()
}
