package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"tg_relay/internal/config"
)

func TestRateLimiterDisabledIsNoop(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{Enabled: false})
	defer limiter.Close()

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := limiter.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("disabled limiter should not block, took %v", elapsed)
	}
}

func TestRateLimiterAcquireRespectsContext(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{Enabled: true, MessagesPerSecond: 1})
	defer limiter.Close()

	// 耗尽初始令牌
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// 令牌桶为空且补充间隔为 1s，上下文应先超时
	err := limiter.Acquire(ctx)
	if err == nil {
		t.Fatal("expected context error, got nil")
	}
}

func TestThrottleGateSuspendsAllSenders(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{Enabled: false})
	defer limiter.Close()

	const retryAfter = 120 * time.Millisecond
	limiter.OnThrottle(retryAfter)

	start := time.Now()
	var wg sync.WaitGroup
	elapsed := make([]time.Duration, 3)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := limiter.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			elapsed[idx] = time.Since(start)
		}(i)
	}
	wg.Wait()

	for i, e := range elapsed {
		if e < retryAfter {
			t.Fatalf("sender %d resumed after %v, want >= %v", i, e, retryAfter)
		}
	}
}

func TestThrottleGateOverlappingKeepsLongestWait(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{Enabled: false})
	defer limiter.Close()

	limiter.OnThrottle(200 * time.Millisecond)
	limiter.OnThrottle(50 * time.Millisecond) // 较短的信号不应缩短等待

	start := time.Now()
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Fatalf("resumed after %v, want >= 200ms", elapsed)
	}
}

func TestThrottleGateIgnoresNonPositiveWait(t *testing.T) {
	limiter := NewRateLimiter(config.RateLimitConfig{Enabled: false})
	defer limiter.Close()

	limiter.OnThrottle(0)
	limiter.OnThrottle(-time.Second)

	start := time.Now()
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("non-positive throttle should not block, took %v", elapsed)
	}
}
