package relay

import (
	"context"
	"sync"
	"time"

	"tg_relay/internal/config"
	"tg_relay/internal/logger"
)

// RateLimiter Token Bucket 速率限制器，附带共享退避闸门
// 稳态限速控制转发频率；平台发出限流信号后，所有共享同一实例的
// 发送方都会暂停到退避截止时间，避免立刻再次触发限流
type RateLimiter struct {
	enabled  bool
	tokens   chan struct{} // 令牌桶
	stopCh   chan struct{} // 停止信号
	interval time.Duration // 令牌补充间隔

	mu       sync.Mutex
	resumeAt time.Time // 退避截止时间，零值表示未退避
}

// NewRateLimiter 创建速率限制器
// 未启用稳态限速时 Acquire 不消耗令牌，但退避闸门仍然生效
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	limiter := &RateLimiter{
		enabled: cfg.Enabled,
		stopCh:  make(chan struct{}),
	}

	if cfg.Enabled {
		rate := cfg.MessagesPerSecond
		if rate < 1 {
			rate = 1
		}
		limiter.tokens = make(chan struct{}, rate)
		limiter.interval = time.Second / time.Duration(rate)

		// 初始填充令牌桶
		for i := 0; i < rate; i++ {
			limiter.tokens <- struct{}{}
		}

		// 启动令牌补充 goroutine
		go limiter.refill()
	}

	return limiter
}

// Acquire 等待获取发送许可
// 先取令牌，再等待退避闸门，闸门优先于稳态限速
func (r *RateLimiter) Acquire(ctx context.Context) error {
	if r.enabled {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.tokens:
		}
	}

	for {
		r.mu.Lock()
		wait := time.Until(r.resumeAt)
		r.mu.Unlock()

		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// 退避期间可能有更长的限流信号进来，回到循环再检查一次
		}
	}
}

// OnThrottle 处理平台限流信号
// 重叠的限流信号只保留最晚的截止时间
func (r *RateLimiter) OnThrottle(retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}

	until := time.Now().Add(retryAfter)

	r.mu.Lock()
	extended := until.After(r.resumeAt)
	if extended {
		r.resumeAt = until
	}
	r.mu.Unlock()

	if extended {
		logger.L().Warnf("Provider throttle: suspending all senders for %v", retryAfter)
	}
}

// refill 定时补充令牌
func (r *RateLimiter) refill() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			select {
			case r.tokens <- struct{}{}:
			default:
				// 令牌桶已满，跳过
			}
		}
	}
}

// Close 关闭速率限制器
func (r *RateLimiter) Close() {
	close(r.stopCh)
}
