// Package redis disponibiliza a implementação do storage de cota baseada em Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
)

const DefaultKeyPrefix = "ratelimit"

// admitScript verifica todas as janelas e só incrementa se nenhuma estiver no limite.
// KEYS[i] é o contador da janela i; ARGV[2i-1] o limite e ARGV[2i] o TTL em ms.
// Retorna {admitido, índice bloqueante, count_1, pttl_1, ..., count_n, pttl_n}.
var admitScript = redis.NewScript(`
local n = #KEYS
local counts = {}
for i = 1, n do
  counts[i] = tonumber(redis.call('GET', KEYS[i]) or '0')
end
for i = 1, n do
  if counts[i] >= tonumber(ARGV[2 * i - 1]) then
    local out = {0, i}
    for j = 1, n do
      table.insert(out, counts[j])
      table.insert(out, redis.call('PTTL', KEYS[j]))
    end
    return out
  end
end
local out = {1, 0}
for i = 1, n do
  local c = redis.call('INCR', KEYS[i])
  if c == 1 or redis.call('PTTL', KEYS[i]) < 0 then
    redis.call('PEXPIRE', KEYS[i], ARGV[2 * i])
  end
  table.insert(out, c)
  table.insert(out, redis.call('PTTL', KEYS[i]))
end
return out
`)

type Storage struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

var _ ports.QuotaStore = (*Storage)(nil)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// New conecta e faz ping no Redis antes de devolver o storage.
func New(cfg Config) (*Storage, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromClient(client, cfg.KeyPrefix), nil
}

// NewFromClient reaproveita um client existente; não faz ping.
func NewFromClient(client *redis.Client, keyPrefix string) *Storage {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Storage{client: client, keyPrefix: keyPrefix, now: time.Now}
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return domain.StoreUnavailable("ping", s.client.Ping(ctx).Err())
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

	keys := make([]string, len(windows))
	args := make([]interface{}, 0, 2*len(windows))
	for i, w := range windows {
		keys[i] = s.key(identity, w.Kind)
		args = append(args, w.Limit, w.TTL.Milliseconds())
	}

	raw, err := admitScript.Run(ctx, s.client, keys, args...).Int64Slice()
	if err != nil {
		return domain.Admission{}, domain.StoreUnavailable("admit", err)
	}
	if len(raw) != 2+2*len(windows) {
		return domain.Admission{}, domain.StoreUnavailable("admit", fmt.Errorf("unexpected script reply of length %d", len(raw)))
	}

	now := s.now()
	adm := domain.Admission{Admitted: raw[0] == 1, Counters: make([]domain.Counter, len(windows))}
	if !adm.Admitted && raw[1] >= 1 {
		adm.Blocking = windows[raw[1]-1].Kind
	}
	for i, w := range windows {
		adm.Counters[i] = toCounter(identity, w, raw[2+2*i], raw[3+2*i], now)
	}
	return adm, nil
}

func (s *Storage) Reset(ctx context.Context, identity string) error {
	keys := make([]string, 0, len(domain.WindowKinds))
	for _, kind := range domain.WindowKinds {
		keys = append(keys, s.key(identity, kind))
	}
	return domain.StoreUnavailable("reset", s.client.Del(ctx, keys...).Err())
}

func (s *Storage) ResetAll(ctx context.Context) (int, error) {
	removed := 0
	for _, kind := range domain.WindowKinds {
		iter := s.client.Scan(ctx, 0, s.keyPrefix+":tryon_v2_"+string(kind)+":*", 100).Iterator()
		for iter.Next(ctx) {
			n, err := s.client.Del(ctx, iter.Val()).Result()
			if err != nil {
				return removed, domain.StoreUnavailable("reset all", err)
			}
			removed += int(n)
		}
		if err := iter.Err(); err != nil {
			return removed, domain.StoreUnavailable("reset all", err)
		}
	}
	return removed, nil
}

func (s *Storage) Snapshot(ctx context.Context, identity string, windows ...domain.Window) ([]domain.Counter, error) {
	pipe := s.client.Pipeline()
	gets := make([]*redis.StringCmd, len(windows))
	ttls := make([]*redis.DurationCmd, len(windows))
	for i, w := range windows {
		key := s.key(identity, w.Kind)
		gets[i] = pipe.Get(ctx, key)
		ttls[i] = pipe.PTTL(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, domain.StoreUnavailable("snapshot", err)
	}

	now := s.now()
	counters := make([]domain.Counter, len(windows))
	for i, w := range windows {
		count, err := gets[i].Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, domain.StoreUnavailable("snapshot", err)
		}
		// go-redis devolve -1/-2 sem escala de precisão para chave sem TTL ou ausente.
		pttl := ttls[i].Val().Milliseconds()
		if ttls[i].Val() < 0 {
			pttl = -1
		}
		counters[i] = toCounter(identity, w, count, pttl, now)
	}
	return counters, nil
}

// key mantém o formato das chaves já existentes em produção:
// ratelimit:tryon_v2_hourly:<identidade>.
func (s *Storage) key(identity string, kind domain.WindowKind) string {
	return s.keyPrefix + ":tryon_v2_" + string(kind) + ":" + identity
}

// toCounter converte o par (count, pttl em ms). Contagem zero é chave ausente;
// chave sem TTL (pttl negativo) conta como janela que ainda vai ser ancorada
// no próximo incremento do admitScript.
func toCounter(identity string, w domain.Window, count, pttlMillis int64, now time.Time) domain.Counter {
	if count <= 0 {
		return domain.Counter{Identity: identity, Kind: w.Kind, TTLRemaining: w.TTL}
	}
	if pttlMillis < 0 {
		return domain.Counter{Identity: identity, Kind: w.Kind, Count: count, WindowStart: now, TTLRemaining: w.TTL}
	}
	remaining := time.Duration(pttlMillis) * time.Millisecond
	return domain.Counter{
		Identity:     identity,
		Kind:         w.Kind,
		Count:        count,
		WindowStart:  now.Add(remaining - w.TTL),
		TTLRemaining: remaining,
	}
}
