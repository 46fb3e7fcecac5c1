package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRemainingIsClamped(t *testing.T) {
	cases := []struct {
		limit, used, want int64
	}{
		{10, 0, 10},
		{10, 7, 3},
		{10, 10, 0},
		{10, 11, 0},
	}
	for _, c := range cases {
		if got := Remaining(c.limit, c.used); got != c.want {
			t.Errorf("Remaining(%d, %d) = %d, want %d", c.limit, c.used, got, c.want)
		}
	}
}

func TestWindowStatus_PercentUsed(t *testing.T) {
	s := NewWindowStatus(DailyWindow(40), Counter{Count: 3, TTLRemaining: time.Hour})
	if got := s.PercentUsed(); got != 7.5 {
		t.Fatalf("expected 7.5%%, got %v", got)
	}
	if s.Remaining != 37 || s.ResetIn != time.Hour {
		t.Fatalf("unexpected status %+v", s)
	}

	third := WindowStatus{Limit: 3, Used: 1}
	if got := third.PercentUsed(); got != 33.33 {
		t.Fatalf("expected 33.33%%, got %v", got)
	}
}

func TestWindowKind_RetryHint(t *testing.T) {
	if Hourly.RetryHint() != "1 hour" || Daily.RetryHint() != "24 hours" {
		t.Fatalf("unexpected retry hints %q / %q", Hourly.RetryHint(), Daily.RetryHint())
	}
	if WindowKind("weekly").Valid() {
		t.Fatalf("weekly must not be a valid window kind")
	}
}

func TestQuotaExceededError(t *testing.T) {
	d := Decision{
		Blocking: Daily,
		Hourly:   WindowStatus{Kind: Hourly, Limit: 10, Used: 1},
		Daily:    WindowStatus{Kind: Daily, Limit: 40, Used: 40},
	}
	err := fmt.Errorf("tryon: %w", NewQuotaExceeded(d))

	if !IsQuotaExceeded(err) {
		t.Fatalf("expected wrapped error to match ErrQuotaExceeded")
	}
	var exceeded *QuotaExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected errors.As to find QuotaExceededError")
	}
	if exceeded.Limit != 40 || exceeded.Used != 40 || exceeded.RetryAfter() != "24 hours" {
		t.Fatalf("unexpected payload %+v", exceeded)
	}
	if IsStoreUnavailable(err) {
		t.Fatalf("quota denial must not look like a store failure")
	}
}

func TestStoreUnavailable(t *testing.T) {
	if StoreUnavailable("admit", nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
	err := StoreUnavailable("admit", errors.New("connection refused"))
	if !IsStoreUnavailable(err) || IsQuotaExceeded(err) {
		t.Fatalf("unexpected classification for %v", err)
	}
}
