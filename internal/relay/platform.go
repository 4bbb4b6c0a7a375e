package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg_relay/internal/relay/models"
)

// ErrEntityNotFound 实体无法解析（不存在或不可见）
var ErrEntityNotFound = errors.New("entity not found")

// PlatformClient 平台能力接口
// 引擎只依赖这组能力，不依赖具体平台库
type PlatformClient interface {
	// Connect 建立平台会话并开始接收事件
	Connect(ctx context.Context) error

	// IsAuthorized 报告当前会话是否已通过认证
	IsAuthorized(ctx context.Context) (bool, error)

	// ResolveEntity 将实体引用（数字 ID、用户名或 "me"）解析为具体实体
	// 解析失败返回包装了 ErrEntityNotFound 的错误
	ResolveEntity(ctx context.Context, ref string) (*models.Entity, error)

	// IterateHistory 按消息 ID 升序遍历某聊天中 ID 严格大于 afterID 的历史消息
	// fn 返回非 nil 错误时中止遍历并原样返回该错误
	IterateHistory(ctx context.Context, chatID int64, afterID int64, fn func(models.MessageView) error) error

	// Forward 将消息转发到目标实体
	// 失败时返回 *ForwardError 以便上层区分限流/瞬时/永久/致命
	Forward(ctx context.Context, msg models.MessageView, dest *models.Entity) error

	// SubscribeNewMessages 返回实时消息事件流
	// 同一聊天的事件按平台送达顺序出现
	SubscribeNewMessages() <-chan models.MessageView

	// Disconnect 释放平台会话
	Disconnect(ctx context.Context) error
}

// ErrorKind 转发错误分类
type ErrorKind int

const (
	// ErrorTransient 网络抖动等瞬时错误，有限次重试后计入错误
	ErrorTransient ErrorKind = iota
	// ErrorThrottled 平台限流信号，按指定时长退避后无限重试，不计入错误
	ErrorThrottled
	// ErrorPermanent 永久错误（目标无效等），不重试
	ErrorPermanent
	// ErrorFatal 会话级错误（认证失效等），中止整个阶段
	ErrorFatal
)

// String 返回分类的可读名称
func (k ErrorKind) String() string {
	switch k {
	case ErrorTransient:
		return "transient"
	case ErrorThrottled:
		return "throttled"
	case ErrorPermanent:
		return "permanent"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ForwardError 带分类的转发错误
// 重试策略由调用方根据 Kind 显式分支决定
type ForwardError struct {
	Kind       ErrorKind
	RetryAfter time.Duration // 仅 ErrorThrottled 有意义
	Err        error
}

// Error 实现 error 接口
func (e *ForwardError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("forward error (%s)", e.Kind)
	}
	return fmt.Sprintf("forward error (%s): %v", e.Kind, e.Err)
}

// Unwrap 返回底层错误
func (e *ForwardError) Unwrap() error { return e.Err }

// NewThrottledError 构造限流错误
func NewThrottledError(retryAfter time.Duration, err error) *ForwardError {
	return &ForwardError{Kind: ErrorThrottled, RetryAfter: retryAfter, Err: err}
}

// NewTransientError 构造瞬时错误
func NewTransientError(err error) *ForwardError {
	return &ForwardError{Kind: ErrorTransient, Err: err}
}

// NewPermanentError 构造永久错误
func NewPermanentError(err error) *ForwardError {
	return &ForwardError{Kind: ErrorPermanent, Err: err}
}

// NewFatalError 构造致命错误
func NewFatalError(err error) *ForwardError {
	return &ForwardError{Kind: ErrorFatal, Err: err}
}

// classifyForward 提取错误分类，未分类的错误一律按瞬时处理
func classifyForward(err error) *ForwardError {
	var fwdErr *ForwardError
	if errors.As(err, &fwdErr) {
		return fwdErr
	}
	return &ForwardError{Kind: ErrorTransient, Err: err}
}
