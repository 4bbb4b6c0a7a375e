package repository

import (
	"context"

	"tg_relay/internal/relay/models"
)

// CursorRepository 游标数据访问接口
// 游标记录每个来源最后一条成功转发的消息 ID
type CursorRepository interface {
	// Get 读取来源的游标，不存在时返回 0
	Get(ctx context.Context, entityID string) (int64, error)

	// SetIfGreater 仅当新 ID 大于已存储值时写入（严格单调）
	SetIfGreater(ctx context.Context, entityID string, messageID int64) error

	// MaxMessageID 返回所有游标中的最大消息 ID，用于统计
	MaxMessageID(ctx context.Context) (int64, error)

	// Count 返回已有游标的来源数量
	Count(ctx context.Context) (int64, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// RouteRepository 路由配置数据访问接口
type RouteRepository interface {
	// Upsert 创建或覆盖路由（同一来源只保留一个目的地）
	Upsert(ctx context.Context, route *models.Route) error

	// Remove 删除路由，返回是否存在
	Remove(ctx context.Context, source string) (bool, error)

	// List 列出所有路由
	List(ctx context.Context) ([]*models.Route, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// FilterRepository 过滤配置数据访问接口
type FilterRepository interface {
	// Get 读取过滤配置，未初始化时返回默认值
	Get(ctx context.Context) (models.FilterConfig, error)

	// Set 写入完整过滤配置
	Set(ctx context.Context, cfg models.FilterConfig) error
}

// ArchiveRepository 消息档案数据访问接口
// 档案是历史回填的数据源
type ArchiveRepository interface {
	// Save 记录一条观察到的消息（按 chat_id+message_id 幂等）
	Save(ctx context.Context, msg *models.ArchivedMessage) error

	// ListAfter 按消息 ID 升序返回某聊天中 ID 严格大于 afterID 的消息
	ListAfter(ctx context.Context, chatID int64, afterID int64, limit int64) ([]*models.ArchivedMessage, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}
