package app

import (
	"context"
	"fmt"

	"tg_relay/internal/config"
	"tg_relay/internal/logger"
	"tg_relay/internal/mongo"
	"tg_relay/internal/relay"
	"tg_relay/internal/relay/repository"
	"tg_relay/internal/relay/service"
	"tg_relay/internal/telegram"
)

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	Config  *config.Config
	MongoDB *mongo.Client

	Routes  repository.RouteRepository
	Filters repository.FilterRepository
	Cursors repository.CursorRepository
	Archive repository.ArchiveRepository

	RouteService *service.RouteService

	Telegram *telegram.Client
	Engine   *relay.Engine
}

// New 初始化配置管理所需的服务（MongoDB 与各 Repository）
// 不连接 Telegram，供 add-route/stats 等管理命令使用
func New(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	mongoClient, err := mongo.InitFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	a.MongoDB = mongoClient
	logger.L().Info("MongoDB initialized successfully")

	db := mongoClient.Database()
	a.Routes = repository.NewMongoRouteRepository(db)
	a.Filters = repository.NewMongoFilterRepository(db)
	a.Cursors = repository.NewMongoCursorRepository(db)
	a.Archive = repository.NewMongoArchiveRepository(db)

	if err := a.ensureIndexes(context.Background()); err != nil {
		_ = a.Close(context.Background())
		return nil, fmt.Errorf("ensure indexes failed: %w", err)
	}

	a.RouteService = service.NewRouteService(a.Routes, a.Filters)

	return a, nil
}

// NewWithPlatform 初始化完整中继服务（含 Telegram 客户端与引擎）
func NewWithPlatform(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a, err := New(cfg)
	if err != nil {
		return nil, err
	}

	client, err := telegram.New(telegram.Config{
		Token:     cfg.TelegramToken,
		BatchSize: cfg.BatchSize,
	}, a.Archive)
	if err != nil {
		_ = a.Close(context.Background())
		return nil, fmt.Errorf("init Telegram client failed: %w", err)
	}
	a.Telegram = client

	a.Engine = relay.NewEngine(client, a.Routes, a.Filters, a.Cursors, cfg)
	logger.L().Info("Relay engine initialized successfully")

	return a, nil
}

// ensureIndexes 初始化所有集合的索引
func (a *App) ensureIndexes(ctx context.Context) error {
	if err := a.Routes.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := a.Cursors.EnsureIndexes(ctx); err != nil {
		return err
	}
	return a.Archive.EnsureIndexes(ctx)
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) error {
	if a.Engine != nil {
		a.Engine.Stop()
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			return fmt.Errorf("close MongoDB failed: %w", err)
		}
	}
	return nil
}
