// Package memory disponibiliza o storage de cota em memória, para instância única.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
)

type counterKey struct {
	identity string
	kind     domain.WindowKind
}

type counter struct {
	count       int64
	windowStart time.Time
	expiresAt   time.Time
}

// Storage protege toda a tabela de contadores com um único mutex.
// Admit precisa ler e escrever mais de uma janela sem intercalação.
type Storage struct {
	mu       sync.Mutex
	counters map[counterKey]*counter
	now      func() time.Time
}

var _ ports.QuotaStore = (*Storage)(nil)

type Option func(*Storage)

// WithClock substitui o relógio, usado em testes.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

// New cria um storage em memória vazio, com relógio real por padrão.
func New(opts ...Option) *Storage {
	s := &Storage{
		counters: make(map[counterKey]*counter),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) Get(_ context.Context, identity string, window domain.Window) (domain.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(identity, window, s.now()), nil
}

func (s *Storage) IncrementIfUnder(_ context.Context, identity string, window domain.Window) (domain.Counter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	current := s.read(identity, window, now)
	if current.Count >= window.Limit {
		return current, false, nil
	}
	return s.increment(identity, window, now), true, nil
}

func (s *Storage) Admit(_ context.Context, identity string, windows ...domain.Window) (domain.Admission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	counters := make([]domain.Counter, len(windows))
	for i, w := range windows {
		counters[i] = s.read(identity, w, now)
	}

	for i, w := range windows {
		if counters[i].Count >= w.Limit {
			return domain.Admission{Admitted: false, Blocking: w.Kind, Counters: counters}, nil
		}
	}

	for i, w := range windows {
		counters[i] = s.increment(identity, w, now)
	}
	return domain.Admission{Admitted: true, Counters: counters}, nil
}

func (s *Storage) Reset(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range domain.WindowKinds {
		delete(s.counters, counterKey{identity: identity, kind: kind})
	}
	return nil
}

func (s *Storage) ResetAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := len(s.counters)
	s.counters = make(map[counterKey]*counter)
	return removed, nil
}

func (s *Storage) Snapshot(_ context.Context, identity string, windows ...domain.Window) ([]domain.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	counters := make([]domain.Counter, len(windows))
	for i, w := range windows {
		counters[i] = s.read(identity, w, now)
	}
	return counters, nil
}

func (s *Storage) Ping(_ context.Context) error {
	return nil
}

// Len devolve o número de contadores ainda guardados, vivos ou não varridos.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

// Cleanup remove contadores expirados e devolve quantos saíram.
func (s *Storage) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, key)
			removed++
		}
	}
	return removed
}

// StartCleanup varre contadores expirados periodicamente.
// A função devolvida para o goroutine.
func (s *Storage) StartCleanup(interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

// read deve ser chamado com s.mu travado. Expirados são tratados como ausentes.
func (s *Storage) read(identity string, window domain.Window, now time.Time) domain.Counter {
	c, ok := s.counters[counterKey{identity: identity, kind: window.Kind}]
	if !ok || !now.Before(c.expiresAt) {
		return domain.Counter{Identity: identity, Kind: window.Kind, TTLRemaining: window.TTL}
	}
	return domain.Counter{
		Identity:     identity,
		Kind:         window.Kind,
		Count:        c.count,
		WindowStart:  c.windowStart,
		TTLRemaining: c.expiresAt.Sub(now),
	}
}

func (s *Storage) increment(identity string, window domain.Window, now time.Time) domain.Counter {
	key := counterKey{identity: identity, kind: window.Kind}
	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = &counter{windowStart: now, expiresAt: now.Add(window.TTL)}
		s.counters[key] = c
	}
	c.count++
	return domain.Counter{
		Identity:     identity,
		Kind:         window.Kind,
		Count:        c.count,
		WindowStart:  c.windowStart,
		TTLRemaining: c.expiresAt.Sub(now),
	}
}
