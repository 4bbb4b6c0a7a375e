package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tg_relay/internal/logger"
	"tg_relay/internal/relay/models"
	"tg_relay/internal/relay/repository"
)

// ErrRouteNotFound 路由不存在
var ErrRouteNotFound = errors.New("route not found")

// RouteService 路由与过滤配置管理服务
// CLI 等外壳通过它读写配置，引擎启动时从同一存储加载
type RouteService struct {
	routes  repository.RouteRepository
	filters repository.FilterRepository
}

// NewRouteService 创建路由配置服务
func NewRouteService(routes repository.RouteRepository, filters repository.FilterRepository) *RouteService {
	return &RouteService{
		routes:  routes,
		filters: filters,
	}
}

// AddRoute 添加或覆盖路由
// 同一来源重复添加时覆盖原目的地
func (s *RouteService) AddRoute(ctx context.Context, source, destination string) (*models.Route, error) {
	source = NormalizeRef(source)
	destination = NormalizeRef(destination)

	if source == "" {
		return nil, fmt.Errorf("source cannot be empty")
	}
	if destination == "" {
		return nil, fmt.Errorf("destination cannot be empty")
	}

	route := &models.Route{
		Source:      source,
		Destination: destination,
	}

	if err := s.routes.Upsert(ctx, route); err != nil {
		return nil, fmt.Errorf("failed to add route: %w", err)
	}

	logger.L().Infof("Route added: %s → %s", source, destination)
	return route, nil
}

// RemoveRoute 删除路由
func (s *RouteService) RemoveRoute(ctx context.Context, source string) error {
	source = NormalizeRef(source)
	if source == "" {
		return fmt.Errorf("source cannot be empty")
	}

	found, err := s.routes.Remove(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to remove route: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, source)
	}

	logger.L().Infof("Route removed: %s", source)
	return nil
}

// ListRoutes 列出所有路由
func (s *RouteService) ListRoutes(ctx context.Context) ([]*models.Route, error) {
	return s.routes.List(ctx)
}

// Filters 读取当前过滤配置
func (s *RouteService) Filters(ctx context.Context) (models.FilterConfig, error) {
	return s.filters.Get(ctx)
}

// UpdateFilters 部分更新过滤配置，返回更新后的完整配置
func (s *RouteService) UpdateFilters(ctx context.Context, update models.FilterUpdate) (models.FilterConfig, error) {
	current, err := s.filters.Get(ctx)
	if err != nil {
		return models.FilterConfig{}, fmt.Errorf("failed to load filters: %w", err)
	}

	if update.Empty() {
		return current, nil
	}

	next := update.Apply(current)
	if err := s.filters.Set(ctx, next); err != nil {
		return models.FilterConfig{}, fmt.Errorf("failed to save filters: %w", err)
	}

	logger.L().Infof("Filters updated: %+v", next)
	return next, nil
}

// NormalizeRef 规整实体引用
// "me"/"self"/"saved" 归一为 "me"，用户名去掉前导 @
func NormalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)

	switch strings.ToLower(ref) {
	case "me", "self", "saved":
		return models.SelfRef
	}

	return strings.TrimPrefix(ref, "@")
}
