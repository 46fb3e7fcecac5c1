// Package postgres implementa o storage de cota compartilhado sobre PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "github.com/lib/pq"

	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
)

// Storage serializa admissões concorrentes da mesma identidade travando as linhas
// com um upsert (INSERT ... ON CONFLICT DO UPDATE ... RETURNING).
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

var _ ports.QuotaStore = (*Storage)(nil)

// Open abre a conexão, faz ping e garante o schema.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New usa um *sql.DB já aberto; não cria o schema.
func New(db *sql.DB) *Storage {
	return &Storage{db: db, now: time.Now}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, querySchema); err != nil {
		return fmt.Errorf("create quota schema: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return domain.StoreUnavailable("ping", s.db.PingContext(ctx))
}

func (s *Storage) Get(ctx context.Context, identity string, window domain.Window) (domain.Counter, error) {
	counters, err := s.Snapshot(ctx, identity, window)
	if err != nil {
		return domain.Counter{}, err
	}
	return counters[0], nil
}

func (s *Storage) IncrementIfUnder(ctx context.Context, identity string, window domain.Window) (domain.Counter, bool, error) {
	adm, err := s.Admit(ctx, identity, window)
	if err != nil {
		return domain.Counter{}, false, err
	}
	return adm.Counters[0], adm.Admitted, nil
}

func (s *Storage) Admit(ctx context.Context, identity string, windows ...domain.Window) (domain.Admission, error) {
	if len(windows) == 0 {
		return domain.Admission{Admitted: true}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Admission{}, domain.StoreUnavailable("admit", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	states := make([]counterRow, len(windows))
	for _, i := range lockOrder(windows) {
		kind := string(windows[i].Kind)
		row := tx.QueryRowContext(ctx, queryLockCounter, identity, kind, now)
		if err := row.Scan(&states[i].count, &states[i].windowStart, &states[i].expiresAt); err != nil {
			return domain.Admission{}, domain.StoreUnavailable("admit", err)
		}
	}

	adm := domain.Admission{Counters: make([]domain.Counter, len(windows))}
	for i, w := range windows {
		adm.Counters[i] = states[i].toCounter(identity, w, now)
	}
	for i, w := range windows {
		if adm.Counters[i].Count >= w.Limit {
			adm.Blocking = w.Kind
			return adm, nil
		}
	}

	for i, w := range windows {
		kind := string(w.Kind)
		if states[i].live(now) {
			_, err = tx.ExecContext(ctx, queryIncrementCounter, identity, kind)
			states[i].count++
		} else {
			_, err = tx.ExecContext(ctx, queryRestartCounter, identity, kind, now, now.Add(w.TTL))
			states[i] = counterRow{count: 1, windowStart: now, expiresAt: now.Add(w.TTL)}
		}
		if err != nil {
			return domain.Admission{}, domain.StoreUnavailable("admit", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Admission{}, domain.StoreUnavailable("admit", err)
	}

	adm.Admitted = true
	for i, w := range windows {
		adm.Counters[i] = states[i].toCounter(identity, w, now)
	}
	return adm, nil
}

func (s *Storage) Reset(ctx context.Context, identity string) error {
	_, err := s.db.ExecContext(ctx, queryDeleteIdentity, identity)
	return domain.StoreUnavailable("reset", err)
}

func (s *Storage) ResetAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, queryDeleteAll)
	if err != nil {
		return 0, domain.StoreUnavailable("reset all", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, domain.StoreUnavailable("reset all", err)
	}
	return int(n), nil
}

func (s *Storage) Snapshot(ctx context.Context, identity string, windows ...domain.Window) ([]domain.Counter, error) {
	now := s.now().UTC()
	counters := make([]domain.Counter, len(windows))
	for i, w := range windows {
		var row counterRow
		err := s.db.QueryRowContext(ctx, querySelectCounter, identity, string(w.Kind)).
			Scan(&row.count, &row.windowStart, &row.expiresAt)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, domain.StoreUnavailable("snapshot", err)
		}
		counters[i] = row.toCounter(identity, w, now)
	}
	return counters, nil
}

// Cleanup apaga linhas expiradas; contadores expirados já são lidos como ausentes.
func (s *Storage) Cleanup(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, queryDeleteExpired, s.now().UTC())
	if err != nil {
		return 0, domain.StoreUnavailable("cleanup", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type counterRow struct {
	count       int64
	windowStart time.Time
	expiresAt   time.Time
}

func (r counterRow) live(now time.Time) bool {
	return now.Before(r.expiresAt)
}

func (r counterRow) toCounter(identity string, w domain.Window, now time.Time) domain.Counter {
	if r.count <= 0 || !r.live(now) {
		return domain.Counter{Identity: identity, Kind: w.Kind, TTLRemaining: w.TTL}
	}
	return domain.Counter{
		Identity:     identity,
		Kind:         w.Kind,
		Count:        r.count,
		WindowStart:  r.windowStart,
		TTLRemaining: r.expiresAt.Sub(now),
	}
}

// lockOrder devolve os índices ordenados por janela, para que transações
// concorrentes travem as linhas sempre na mesma ordem.
func lockOrder(windows []domain.Window) []int {
	idx := make([]int, len(windows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return windows[idx[a]].Kind < windows[idx[b]].Kind
	})
	return idx
}
