package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 应用程序配置
type Config struct {
	TelegramToken string // Telegram Bot API Token
	MongoURI      string // MongoDB连接URI
	MongoDBName   string // MongoDB数据库名称
	RateLimit     RateLimitConfig
	MaxRetries    int           // 转发瞬时错误的最大重试次数
	RetryDelay    time.Duration // 重试基础延迟（指数退避的起点）
	BatchSize     int64         // 历史回填每批读取的消息数量
}

// RateLimitConfig 出站速率限制配置
type RateLimitConfig struct {
	Enabled           bool // 是否启用稳态限速
	MessagesPerSecond int  // 每秒允许的转发数量
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	if mongoDBName == "" {
		mongoDBName = "tg_relay"
	}

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDBName:   mongoDBName,
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MessagesPerSecond: 10,
		},
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
		BatchSize:  100,
	}

	// 解析RATE_LIMIT_ENABLED
	if enabled := strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")); enabled != "" {
		value, err := strconv.ParseBool(enabled)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RATE_LIMIT_ENABLED: %w", err)
		}
		cfg.RateLimit.Enabled = value
	}

	// 解析MESSAGES_PER_SECOND
	if rateStr := strings.TrimSpace(os.Getenv("MESSAGES_PER_SECOND")); rateStr != "" {
		rate, err := strconv.Atoi(rateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse MESSAGES_PER_SECOND: %w", err)
		}
		if rate < 1 {
			return nil, fmt.Errorf("MESSAGES_PER_SECOND must be >= 1, got %d", rate)
		}
		cfg.RateLimit.MessagesPerSecond = rate
	}

	// 解析MAX_RETRIES
	if retriesStr := strings.TrimSpace(os.Getenv("MAX_RETRIES")); retriesStr != "" {
		retries, err := strconv.Atoi(retriesStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse MAX_RETRIES: %w", err)
		}
		if retries < 0 {
			return nil, fmt.Errorf("MAX_RETRIES must be >= 0, got %d", retries)
		}
		cfg.MaxRetries = retries
	}

	// 解析RETRY_DELAY_SECONDS
	if delayStr := strings.TrimSpace(os.Getenv("RETRY_DELAY_SECONDS")); delayStr != "" {
		seconds, err := strconv.Atoi(delayStr)
		if err != nil || seconds < 1 {
			return nil, fmt.Errorf("invalid RETRY_DELAY_SECONDS: %s", delayStr)
		}
		cfg.RetryDelay = time.Duration(seconds) * time.Second
	}

	// 解析BACKFILL_BATCH_SIZE
	if batchStr := strings.TrimSpace(os.Getenv("BACKFILL_BATCH_SIZE")); batchStr != "" {
		batch, err := strconv.ParseInt(batchStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse BACKFILL_BATCH_SIZE: %w", err)
		}
		if batch < 1 {
			return nil, fmt.Errorf("BACKFILL_BATCH_SIZE must be >= 1, got %d", batch)
		}
		cfg.BatchSize = batch
	}

	return cfg, nil
}

// Validate 检查运行中继服务所必需的字段
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	return nil
}
