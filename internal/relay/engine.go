package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tg_relay/internal/config"
	"tg_relay/internal/logger"
	"tg_relay/internal/relay/models"
	"tg_relay/internal/relay/repository"
)

// State 引擎生命周期状态
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateResolving
	StateBackfilling
	StateLiveStreaming
	StateDisconnecting
	StateFailed
)

// String 返回状态的可读名称
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateResolving:
		return "resolving"
	case StateBackfilling:
		return "backfilling"
	case StateLiveStreaming:
		return "live_streaming"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRunning 引擎已有活跃会话
	ErrAlreadyRunning = errors.New("relay engine is already running")
	// ErrUnauthorized 平台会话未通过认证
	ErrUnauthorized = errors.New("platform session is not authorized")
	// ErrNoValidRoutes 没有任何路由解析成功
	ErrNoValidRoutes = errors.New("no valid routes")
)

// Engine 中继引擎
// 组合路由解析、历史回填与实时分发，管理单个会话的完整生命周期：
// Idle → Connecting → Resolving → Backfilling → LiveStreaming → Disconnecting → Idle
// 认证失败或零路由时进入 Failed
type Engine struct {
	client  PlatformClient
	routes  repository.RouteRepository
	filters repository.FilterRepository
	cursors repository.CursorRepository

	rateCfg    config.RateLimitConfig
	maxRetries int
	retryDelay time.Duration

	state atomic.Int32
	stats sessionStats

	mu        sync.Mutex
	cancel    context.CancelFunc
	active    map[int64]ActiveRoute
	startedAt time.Time
}

// NewEngine 创建中继引擎
func NewEngine(
	client PlatformClient,
	routeRepo repository.RouteRepository,
	filterRepo repository.FilterRepository,
	cursorRepo repository.CursorRepository,
	cfg *config.Config,
) *Engine {
	return &Engine{
		client:     client,
		routes:     routeRepo,
		filters:    filterRepo,
		cursors:    cursorRepo,
		rateCfg:    cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// State 返回当前状态
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	old := State(e.state.Swap(int32(s)))
	if old != s {
		logger.L().Debugf("Engine state: %s → %s", old, s)
	}
}

// Start 运行一次完整会话，阻塞直到会话结束
// 调用 Stop 或取消传入的上下文可随时协作式终止
func (e *Engine) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return ErrAlreadyRunning
	}
	e.stats.reset()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.cancel = cancel
	e.startedAt = time.Now()
	e.mu.Unlock()

	sessionID := uuid.New().String()
	logger.L().Infof("Relay session %s starting", sessionID)

	// Connecting
	if err := e.connect(runCtx); err != nil {
		e.setState(StateFailed)
		logger.L().Errorf("Relay session %s failed to connect: %v", sessionID, err)
		return err
	}

	// Resolving
	e.setState(StateResolving)
	active, filterCfg, err := e.resolve(runCtx)
	if err != nil {
		e.disconnect()
		e.setState(StateFailed)
		logger.L().Errorf("Relay session %s failed to resolve routes: %v", sessionID, err)
		return err
	}

	e.mu.Lock()
	e.active = active
	e.mu.Unlock()

	limiter := NewRateLimiter(e.rateCfg)
	defer limiter.Close()

	snd := &sender{
		client:     e.client,
		cursors:    e.cursors,
		limiter:    limiter,
		filters:    filterCfg,
		maxRetries: e.maxRetries,
		retryDelay: e.retryDelay,
		stats:      &e.stats,
	}

	// Backfilling
	e.setState(StateBackfilling)
	fatalErr := e.backfill(runCtx, snd, active)

	// LiveStreaming
	if fatalErr == nil && runCtx.Err() == nil {
		e.setState(StateLiveStreaming)
		fatalErr = e.liveStream(runCtx, snd, active)
	}

	// Disconnecting
	e.setState(StateDisconnecting)
	e.disconnect()

	e.mu.Lock()
	e.active = nil
	e.cancel = nil
	e.mu.Unlock()

	e.setState(StateIdle)
	logger.L().Infof("Relay session %s ended (processed=%d, errors=%d)",
		sessionID, e.stats.processed.Load(), e.stats.errors.Load())

	return fatalErr
}

// Stop 请求终止当前会话
// 协作式取消：进行中的消息完成或放弃后才会退出，不会写出半截游标
func (e *Engine) Stop() {
	if e.cancelSession() {
		logger.L().Info("Relay engine stop requested")
	}
}

// cancelSession 取消当前会话上下文，返回是否有会话在运行
func (e *Engine) cancelSession() bool {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// GetStats 汇总当前统计信息
// 所有数值按需重新计算，不持久化
func (e *Engine) GetStats(ctx context.Context) (*models.Stats, error) {
	routes, err := e.routes.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}

	lastID, err := e.cursors.MaxMessageID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cursors: %w", err)
	}

	e.mu.Lock()
	activeCount := len(e.active)
	startedAt := e.startedAt
	e.mu.Unlock()

	stats := &models.Stats{
		State:             e.State().String(),
		TotalRoutes:       len(routes),
		ActiveRoutes:      activeCount,
		ProcessedMessages: e.stats.processed.Load(),
		LastMessageID:     lastID,
		ErrorsCount:       e.stats.errors.Load(),
	}

	if nano := e.stats.lastUpdate.Load(); nano > 0 {
		stats.LastUpdate = time.Unix(0, nano)
	}
	if !startedAt.IsZero() && e.State() != StateIdle {
		stats.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}

	return stats, nil
}

// connect 建立平台会话并验证认证状态
func (e *Engine) connect(ctx context.Context) error {
	if err := e.client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	authorized, err := e.client.IsAuthorized(ctx)
	if err != nil {
		return fmt.Errorf("failed to check authorization: %w", err)
	}
	if !authorized {
		return ErrUnauthorized
	}

	return nil
}

// resolve 加载配置并解析所有路由
func (e *Engine) resolve(ctx context.Context) (map[int64]ActiveRoute, models.FilterConfig, error) {
	routes, err := e.routes.List(ctx)
	if err != nil {
		return nil, models.FilterConfig{}, fmt.Errorf("failed to load routes: %w", err)
	}

	filterCfg, err := e.filters.Get(ctx)
	if err != nil {
		return nil, models.FilterConfig{}, fmt.Errorf("failed to load filters: %w", err)
	}

	active := NewRouteRegistry(e.client).Resolve(ctx, routes)
	if len(active) == 0 {
		return nil, models.FilterConfig{}, ErrNoValidRoutes
	}

	logger.L().Infof("Resolved %d of %d configured routes", len(active), len(routes))
	return active, filterCfg, nil
}

// backfill 按来源 ID 顺序逐条路由回填历史积压
// 返回致命错误；取消和单路由失败都不算致命
func (e *Engine) backfill(ctx context.Context, snd *sender, active map[int64]ActiveRoute) error {
	worker := &BackfillWorker{sender: snd}

	ids := make([]int64, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	total := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return nil
		}

		count, err := worker.Run(ctx, active[id])
		total += count
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var fwdErr *ForwardError
			if errors.As(err, &fwdErr) && fwdErr.Kind == ErrorFatal {
				return err
			}
			// 单条路由回填失败不影响其它路由
			logger.L().Errorf("Backfill failed for %s: %v", active[id].SourceName, err)
		}
	}

	logger.L().Infof("Backfill phase complete: %d messages forwarded across %d routes", total, len(ids))
	return nil
}

// liveStream 消费实时事件流直到停止信号、流关闭或致命错误
func (e *Engine) liveStream(ctx context.Context, snd *sender, active map[int64]ActiveRoute) error {
	dispatcher := NewLiveDispatcher(snd, active)
	defer dispatcher.Close()

	events := e.client.SubscribeNewMessages()
	logger.L().Info("Live streaming started, waiting for messages...")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-dispatcher.Fatal():
			// 先取消会话上下文，worker 在清空队列时丢弃积压，
			// 不再用已失效的会话继续转发
			e.cancelSession()
			return fmt.Errorf("live streaming aborted: %w", err)
		case msg, ok := <-events:
			if !ok {
				logger.L().Warn("Event stream closed by platform")
				return nil
			}
			dispatcher.Dispatch(ctx, msg)
		}
	}
}

// disconnect 释放平台会话，使用独立的超时上下文
func (e *Engine) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.client.Disconnect(ctx); err != nil {
		logger.L().Warnf("Failed to disconnect cleanly: %v", err)
	}
}
