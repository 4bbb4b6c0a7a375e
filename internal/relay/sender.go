package relay

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"tg_relay/internal/logger"
	"tg_relay/internal/relay/models"
	"tg_relay/internal/relay/repository"
)

// 瞬时错误指数退避的上限
const maxTransientBackoff = 60 * time.Second

// 限流信号未带等待时长时的最小退避，防止空转重试
const minThrottleBackoff = 1 * time.Second

// sessionStats 会话内的原子计数器，GetStats 按需读取
type sessionStats struct {
	processed  atomic.Int64
	errors     atomic.Int64
	lastUpdate atomic.Int64 // unix nano
}

func (s *sessionStats) markProcessed() {
	s.processed.Add(1)
	s.lastUpdate.Store(time.Now().UnixNano())
}

func (s *sessionStats) markError() {
	s.errors.Add(1)
	s.lastUpdate.Store(time.Now().UnixNano())
}

// reset 清零计数器，每次新会话开始时调用
func (s *sessionStats) reset() {
	s.processed.Store(0)
	s.errors.Store(0)
	s.lastUpdate.Store(0)
}

// sender 过滤→限速→转发→游标推进 的共享执行管道
// 历史回填和实时分发走同一条管道，保证两个阶段行为一致
type sender struct {
	client     PlatformClient
	cursors    repository.CursorRepository
	limiter    *RateLimiter
	filters    models.FilterConfig
	maxRetries int
	retryDelay time.Duration
	stats      *sessionStats
}

// relay 对单条消息执行完整中继序列
// 返回值 (true, nil) 表示已转发且游标已推进；(false, nil) 表示被过滤
// 或已计入错误后跳过。仅在上下文取消或致命错误时返回非 nil 错误。
// 限流信号触发共享退避后对同一条消息无限重试，不计入错误。
func (s *sender) relay(ctx context.Context, msg models.MessageView, route ActiveRoute) (bool, error) {
	if !ShouldRelay(msg, s.filters) {
		return false, nil
	}

	attempt := 0
	for {
		if err := s.limiter.Acquire(ctx); err != nil {
			return false, err
		}

		err := s.client.Forward(ctx, msg, route.Dest)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		fwdErr := classifyForward(err)
		switch fwdErr.Kind {
		case ErrorThrottled:
			retryAfter := fwdErr.RetryAfter
			if retryAfter <= 0 {
				retryAfter = minThrottleBackoff
			}
			logger.L().Warnf("Throttled while forwarding message %d from chat %d, backing off %v",
				msg.MessageID, msg.ChatID, retryAfter)
			s.limiter.OnThrottle(retryAfter)
			continue

		case ErrorTransient:
			attempt++
			if attempt <= s.maxRetries {
				delay := transientBackoff(s.retryDelay, attempt)
				logger.L().Warnf("Forward attempt %d failed for message %d from chat %d: %v, retrying in %v",
					attempt, msg.MessageID, msg.ChatID, err, delay)
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return false, ctx.Err()
				case <-timer.C:
				}
				continue
			}
			s.stats.markError()
			logger.L().Errorf("Giving up on message %d from chat %d after %d retries: %v",
				msg.MessageID, msg.ChatID, s.maxRetries, err)
			return false, nil

		case ErrorPermanent:
			s.stats.markError()
			logger.L().Errorf("Permanent error forwarding message %d from chat %d: %v",
				msg.MessageID, msg.ChatID, err)
			return false, nil

		case ErrorFatal:
			return false, fmt.Errorf("fatal forward error for chat %d: %w", msg.ChatID, err)

		default:
			s.stats.markError()
			logger.L().Errorf("Unclassified error forwarding message %d from chat %d: %v",
				msg.MessageID, msg.ChatID, err)
			return false, nil
		}
	}

	// 游标只在转发成功后推进；写失败意味着重启后可能重复转发，
	// 但绝不会静默丢失消息
	entityID := strconv.FormatInt(msg.ChatID, 10)
	if err := s.cursors.SetIfGreater(ctx, entityID, msg.MessageID); err != nil {
		s.stats.markError()
		logger.L().Errorf("Failed to advance cursor for chat %d past message %d: %v",
			msg.ChatID, msg.MessageID, err)
	}

	s.stats.markProcessed()
	return true, nil
}

// transientBackoff 计算瞬时错误的重试延迟：base * 2^(attempt-1)，封顶 60s
func transientBackoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxTransientBackoff {
			return maxTransientBackoff
		}
	}
	if delay > maxTransientBackoff {
		return maxTransientBackoff
	}
	return delay
}
