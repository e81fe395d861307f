package ratelimit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/probelab/groundcheck/internal/config"
)

func testLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewLimiter(rdb), mr
}

func limitConfig(limit, dailyQuota int64) config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:    true,
		Limit:      limit,
		Window:     time.Minute,
		DailyQuota: dailyQuota,
	}
}

func TestLimiter_NilRedis_FailOpen(t *testing.T) {
	l := NewLimiter(nil)
	for i := 0; i < 100; i++ {
		decision, err := l.Admit(context.Background(), "10.1.2.3", limitConfig(10, 5))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("expected admission %d to pass without Redis", i)
		}
	}
}

func TestLimiter_WindowDeniesOverLimit(t *testing.T) {
	l, _ := testLimiter(t)
	cfg := limitConfig(3, 0)

	for i := 0; i < 3; i++ {
		decision, err := l.Admit(context.Background(), "10.1.2.3", cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
		if want := int64(3 - i - 1); decision.Remaining != want {
			t.Errorf("request %d: expected remaining=%d, got %d", i+1, want, decision.Remaining)
		}
	}

	decision, err := l.Admit(context.Background(), "10.1.2.3", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatal("fourth request should be denied")
	}
	if decision.Dimension != DimensionWindow {
		t.Errorf("expected window denial, got %q", decision.Dimension)
	}
	if decision.Remaining != 0 {
		t.Errorf("expected remaining=0, got %d", decision.Remaining)
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > time.Minute {
		t.Errorf("retry-after should land inside the window, got %s", decision.RetryAfter)
	}
}

func TestLimiter_WindowIsPerClient(t *testing.T) {
	l, _ := testLimiter(t)
	cfg := limitConfig(1, 0)

	if d, _ := l.Admit(context.Background(), "10.0.0.1", cfg); !d.Allowed {
		t.Fatal("first client should be admitted")
	}
	if d, _ := l.Admit(context.Background(), "10.0.0.1", cfg); d.Allowed {
		t.Fatal("first client should be over its window")
	}
	if d, _ := l.Admit(context.Background(), "10.0.0.2", cfg); !d.Allowed {
		t.Fatal("second client has its own window")
	}
}

func TestLimiter_DailyQuotaDeniesAfterBudget(t *testing.T) {
	l, _ := testLimiter(t)
	cfg := limitConfig(100, 2)

	for i := 0; i < 2; i++ {
		decision, err := l.Admit(context.Background(), "10.1.2.3", cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d is inside the daily budget", i+1)
		}
		if decision.DailyUsed != int64(i+1) || decision.DailyLimit != 2 {
			t.Errorf("request %d: expected daily %d/2, got %d/%d", i+1, i+1, decision.DailyUsed, decision.DailyLimit)
		}
	}

	decision, err := l.Admit(context.Background(), "10.1.2.3", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatal("third request should exhaust the daily budget")
	}
	if decision.Dimension != DimensionDaily {
		t.Errorf("expected daily denial, got %q", decision.Dimension)
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > 24*time.Hour {
		t.Errorf("retry-after should point at the next UTC day, got %s", decision.RetryAfter)
	}
}

func TestLimiter_WindowDenialSparesDailyBudget(t *testing.T) {
	l, mr := testLimiter(t)
	cfg := limitConfig(1, 10)

	if d, _ := l.Admit(context.Background(), "10.1.2.3", cfg); !d.Allowed {
		t.Fatal("first request should be admitted")
	}
	if d, _ := l.Admit(context.Background(), "10.1.2.3", cfg); d.Allowed || d.Dimension != DimensionWindow {
		t.Fatal("second request should be a window denial")
	}

	// The burst denial must not have consumed daily budget.
	used, err := mr.Get(dailyKey("10.1.2.3", time.Now()))
	if err != nil {
		t.Fatalf("daily key should exist: %v", err)
	}
	if used != "1" {
		t.Errorf("expected daily count 1 after a window denial, got %s", used)
	}
}

func TestLimiter_KeyNamespace(t *testing.T) {
	l, mr := testLimiter(t)

	if _, err := l.Admit(context.Background(), "203.0.113.9", limitConfig(5, 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	keys := mr.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected window and daily keys, got %v", keys)
	}
	for _, key := range keys {
		if !strings.HasPrefix(key, "groundcheck:rl:") {
			t.Errorf("key %q outside the groundcheck namespace", key)
		}
		if !strings.Contains(key, "203.0.113.9") {
			t.Errorf("key %q not scoped to the client", key)
		}
	}
}

func TestLimiter_RedisDown_FailOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	l := NewLimiter(rdb)
	mr.Close()

	decision, err := l.Admit(context.Background(), "10.1.2.3", limitConfig(1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected fail-open admission when Redis is unreachable")
	}
}
