package relay

import (
	"context"

	"tg_relay/internal/logger"
	"tg_relay/internal/relay/models"
)

// ActiveRoute 会话内已解析的路由，断开连接后丢弃
type ActiveRoute struct {
	SourceID   int64          // 来源聊天的已解析 ID
	SourceName string         // 来源的友好名称，用于日志
	Dest       *models.Entity // 已解析的目标实体
}

// RouteRegistry 将持久化路由解析为当前会话的活跃路由表
type RouteRegistry struct {
	client PlatformClient
}

// NewRouteRegistry 创建路由解析器
func NewRouteRegistry(client PlatformClient) *RouteRegistry {
	return &RouteRegistry{client: client}
}

// Resolve 逐条解析路由端点，返回以来源 ID 为键的活跃路由表
// 单条路由解析失败只记录警告并跳过，不影响其它路由；
// 全部失败时返回空表，由调用方决定如何处理
func (r *RouteRegistry) Resolve(ctx context.Context, routes []*models.Route) map[int64]ActiveRoute {
	active := make(map[int64]ActiveRoute, len(routes))

	for _, route := range routes {
		if ctx.Err() != nil {
			break
		}

		source, err := r.client.ResolveEntity(ctx, route.Source)
		if err != nil {
			logger.L().Warnf("Dropping route %s → %s: source did not resolve: %v",
				route.Source, route.Destination, err)
			continue
		}

		dest, err := r.client.ResolveEntity(ctx, route.Destination)
		if err != nil {
			logger.L().Warnf("Dropping route %s → %s: destination did not resolve: %v",
				route.Source, route.Destination, err)
			continue
		}

		active[source.ID] = ActiveRoute{
			SourceID:   source.ID,
			SourceName: source.DisplayName(),
			Dest:       dest,
		}
		logger.L().Infof("Active route: %s → %s", source.DisplayName(), dest.DisplayName())
	}

	return active
}
