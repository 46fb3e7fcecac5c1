package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JeanGrijp/tryon-quota/internal/adapters/storage/memory"
	"github.com/JeanGrijp/tryon-quota/internal/core/domain"
	"github.com/JeanGrijp/tryon-quota/internal/core/ports"
)

func TestRateLimiter_FirstTenAllowedEleventhDenied(t *testing.T) {
	for _, policy := range []Policy{PolicyAtomic, PolicySequential} {
		t.Run(string(policy), func(t *testing.T) {
			service := newTestLimiter(t, memory.New(), Config{HourlyLimit: 10, DailyLimit: 40, Policy: policy})
			ctx := context.Background()

			var decision domain.Decision
			var err error
			for i := 0; i < 10; i++ {
				decision, err = service.EvaluateAndAdmit(ctx, "A")
				if err != nil {
					t.Fatalf("unexpected error at attempt %d: %v", i+1, err)
				}
				if !decision.Allowed {
					t.Fatalf("expected request %d to be allowed", i+1)
				}
			}
			if decision.Hourly.Remaining != 0 {
				t.Fatalf("expected remaining hourly 0 after the 10th call, got %d", decision.Hourly.Remaining)
			}
			if decision.Daily.Used != 10 || decision.Daily.Remaining != 30 {
				t.Fatalf("unexpected daily status after 10 calls: %+v", decision.Daily)
			}

			decision, err = service.EvaluateAndAdmit(ctx, "A")
			var exceeded *domain.QuotaExceededError
			if !errors.As(err, &exceeded) {
				t.Fatalf("expected QuotaExceededError, got %v", err)
			}
			if decision.Allowed || decision.Blocking != domain.Hourly {
				t.Fatalf("expected hourly denial, got %+v", decision)
			}
			// The blocking window is never incremented: current stays at the limit.
			if exceeded.Limit != 10 || exceeded.Used != 10 {
				t.Fatalf("expected limit=10 current=10, got limit=%d current=%d", exceeded.Limit, exceeded.Used)
			}
			if exceeded.RetryAfter() != "1 hour" {
				t.Fatalf("unexpected retry hint %q", exceeded.RetryAfter())
			}
			if decision.Daily.Used != 10 {
				t.Fatalf("hourly denial must not touch the daily counter, got %d", decision.Daily.Used)
			}
		})
	}
}

func TestRateLimiter_DailyDenialAtomicDoesNotConsumeHourly(t *testing.T) {
	store := memory.New()
	service := newTestLimiter(t, store, Config{HourlyLimit: 10, DailyLimit: 40})
	ctx := context.Background()
	seedDaily(t, store, "B", 40)

	decision, err := service.EvaluateAndAdmit(ctx, "B")
	if !domain.IsQuotaExceeded(err) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if decision.Blocking != domain.Daily {
		t.Fatalf("expected daily blocking window, got %q", decision.Blocking)
	}
	if decision.Hourly.Used != 0 {
		t.Fatalf("atomic policy must not consume an hourly slot, got %d", decision.Hourly.Used)
	}

	var exceeded *domain.QuotaExceededError
	errors.As(err, &exceeded)
	if exceeded.RetryAfter() != "24 hours" || exceeded.Limit != 40 || exceeded.Used != 40 {
		t.Fatalf("unexpected exceeded payload: %+v", exceeded)
	}
}

func TestRateLimiter_DailyDenialSequentialConsumesHourly(t *testing.T) {
	store := memory.New()
	service := newTestLimiter(t, store, Config{HourlyLimit: 10, DailyLimit: 40, Policy: PolicySequential})
	ctx := context.Background()
	seedDaily(t, store, "B", 40)

	decision, err := service.EvaluateAndAdmit(ctx, "B")
	if !domain.IsQuotaExceeded(err) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if decision.Blocking != domain.Daily {
		t.Fatalf("expected daily blocking window, got %q", decision.Blocking)
	}
	if decision.Hourly.Used != 1 {
		t.Fatalf("sequential policy consumes the hourly slot before the daily check, got %d", decision.Hourly.Used)
	}
}

func TestRateLimiter_HourlyExhaustedDeniedWithDailyHeadroom(t *testing.T) {
	service := newTestLimiter(t, memory.New(), Config{HourlyLimit: 2, DailyLimit: 40})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := service.EvaluateAndAdmit(ctx, "C"); err != nil {
			t.Fatalf("unexpected error on warmup %d: %v", i+1, err)
		}
	}

	decision, err := service.EvaluateAndAdmit(ctx, "C")
	if !domain.IsQuotaExceeded(err) || decision.Blocking != domain.Hourly {
		t.Fatalf("expected hourly denial, decision=%+v err=%v", decision, err)
	}
	if decision.Daily.Remaining != 38 {
		t.Fatalf("expected daily headroom of 38, got %d", decision.Daily.Remaining)
	}
}

func TestRateLimiter_ResetRestoresFullQuota(t *testing.T) {
	store := memory.New()
	cfg := Config{HourlyLimit: 10, DailyLimit: 40}
	service := newTestLimiter(t, store, cfg)
	admin := newTestAdmin(t, store, cfg)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		_, _ = service.EvaluateAndAdmit(ctx, "D")
	}
	if err := admin.Reset(ctx, "D"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	decision, err := service.EvaluateAndAdmit(ctx, "D")
	if err != nil || !decision.Allowed {
		t.Fatalf("expected admission after reset, decision=%+v err=%v", decision, err)
	}
	if decision.Hourly.Used != 1 || decision.Daily.Used != 1 {
		t.Fatalf("expected fresh counters, got hourly=%d daily=%d", decision.Hourly.Used, decision.Daily.Used)
	}
}

func TestRateLimiter_StatusDoesNotChangeOutcome(t *testing.T) {
	store := memory.New()
	cfg := Config{HourlyLimit: 2, DailyLimit: 40}
	service := newTestLimiter(t, store, cfg)
	admin := newTestAdmin(t, store, cfg)
	ctx := context.Background()

	if _, err := service.EvaluateAndAdmit(ctx, "E"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 20; i++ {
		if _, err := admin.Status(ctx, "E"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if _, err := service.Peek(ctx, "E"); err != nil {
			t.Fatalf("peek failed: %v", err)
		}
	}

	decision, err := service.EvaluateAndAdmit(ctx, "E")
	if err != nil || !decision.Allowed || decision.Hourly.Used != 2 {
		t.Fatalf("status calls must not consume quota, decision=%+v err=%v", decision, err)
	}
}

func TestRateLimiter_ConcurrentAdmitsExactlyLimit(t *testing.T) {
	for _, policy := range []Policy{PolicyAtomic, PolicySequential} {
		t.Run(string(policy), func(t *testing.T) {
			service := newTestLimiter(t, memory.New(), Config{HourlyLimit: 10, DailyLimit: 40, Policy: policy})
			ctx := context.Background()

			const callers = 64
			var admitted, denied atomic.Int64
			var wg sync.WaitGroup
			wg.Add(callers)
			for i := 0; i < callers; i++ {
				go func() {
					defer wg.Done()
					decision, err := service.EvaluateAndAdmit(ctx, "fresh")
					switch {
					case err == nil && decision.Allowed:
						admitted.Add(1)
					case domain.IsQuotaExceeded(err):
						denied.Add(1)
					}
				}()
			}
			wg.Wait()

			if admitted.Load() != 10 || denied.Load() != callers-10 {
				t.Fatalf("expected 10 admitted and %d denied, got %d/%d", callers-10, admitted.Load(), denied.Load())
			}
		})
	}
}

func TestRateLimiter_DailyCapAcrossHours(t *testing.T) {
	now := time.Date(2025, 12, 8, 8, 0, 0, 0, time.UTC)
	store := memory.New(memory.WithClock(func() time.Time { return now }))
	service := newTestLimiter(t, store, Config{HourlyLimit: 10, DailyLimit: 40})
	ctx := context.Background()

	admitted := 0
	for hour := 0; hour < 6; hour++ {
		for i := 0; i < 12; i++ {
			if d, err := service.EvaluateAndAdmit(ctx, "F"); err == nil && d.Allowed {
				admitted++
			}
		}
		now = now.Add(time.Hour)
	}
	if admitted != 40 {
		t.Fatalf("expected the daily cap of 40 admissions, got %d", admitted)
	}

	// The fixed daily window started at first use; it expires 24h later.
	now = time.Date(2025, 12, 9, 8, 0, 0, 0, time.UTC)
	if d, err := service.EvaluateAndAdmit(ctx, "F"); err != nil || !d.Allowed {
		t.Fatalf("expected admission once the daily window expired, decision=%+v err=%v", d, err)
	}
}

func TestRateLimiter_EmptyIdentityUsesSentinel(t *testing.T) {
	service := newTestLimiter(t, memory.New(), Config{HourlyLimit: 10, DailyLimit: 40})

	decision, err := service.EvaluateAndAdmit(context.Background(), "  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Identity != domain.UnknownIdentity {
		t.Fatalf("expected sentinel identity, got %q", decision.Identity)
	}
}

func TestRateLimiter_StoreFailureIsDistinct(t *testing.T) {
	store := &failingStorage{Storage: memory.New(), err: errors.New("connection refused")}
	service := newTestLimiter(t, store, Config{HourlyLimit: 10, DailyLimit: 40})

	_, err := service.EvaluateAndAdmit(context.Background(), "G")
	if !domain.IsStoreUnavailable(err) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if domain.IsQuotaExceeded(err) {
		t.Fatalf("store failure must not look like a quota denial")
	}

	if _, err := service.Peek(context.Background(), "G"); !domain.IsStoreUnavailable(err) {
		t.Fatalf("expected store unavailable from peek, got %v", err)
	}
}

func TestNewRateLimiterService_Validation(t *testing.T) {
	if _, err := NewRateLimiterService(nil, Config{HourlyLimit: 1, DailyLimit: 1}); err == nil {
		t.Fatalf("expected error for nil storage")
	}
	if _, err := NewRateLimiterService(memory.New(), Config{HourlyLimit: 0, DailyLimit: 1}); err == nil {
		t.Fatalf("expected error for non-positive limit")
	}
	if _, err := NewRateLimiterService(memory.New(), Config{HourlyLimit: 1, DailyLimit: 1, Policy: "lifo"}); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{"": PolicyAtomic, "atomic": PolicyAtomic, " Sequential ": PolicySequential}
	for raw, want := range cases {
		got, err := ParsePolicy(raw)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	if _, err := ParsePolicy("sliding"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

// newTestLimiter is a helper that fails the test immediately if creation fails.
func newTestLimiter(t *testing.T, storage ports.QuotaStore, cfg Config) *RateLimiterService {
	t.Helper()
	service, err := NewRateLimiterService(storage, cfg)
	if err != nil {
		t.Fatalf("failed to create rate limiter service: %v", err)
	}
	return service
}

func newTestAdmin(t *testing.T, storage ports.QuotaStore, cfg Config) *AdminService {
	t.Helper()
	admin, err := NewAdminService(storage, cfg)
	if err != nil {
		t.Fatalf("failed to create admin service: %v", err)
	}
	return admin
}

func seedDaily(t *testing.T, store *memory.Storage, identity string, n int) {
	t.Helper()
	daily := domain.DailyWindow(int64(n))
	for i := 0; i < n; i++ {
		if _, ok, err := store.IncrementIfUnder(context.Background(), identity, daily); err != nil || !ok {
			t.Fatalf("failed to seed daily counter: ok=%v err=%v", ok, err)
		}
	}
}
