package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"tg_relay/internal/logger"
	"tg_relay/internal/relay"
	"tg_relay/internal/relay/models"
	"tg_relay/internal/relay/repository"
)

// 实时事件缓冲区大小
const eventBufferSize = 256

// Config Telegram 客户端配置
type Config struct {
	Token     string // Bot Token
	BatchSize int64  // 历史回填每批读取的消息数量
	Debug     bool   // 是否开启调试模式
}

// Client 基于 Bot API 的平台客户端，实现 relay.PlatformClient
// Bot API 无法回读任意历史消息，因此客户端把观察到的每条消息写入
// 本地档案，历史回填从档案读取；实时事件直接送入事件通道
type Client struct {
	bot       *bot.Bot
	archive   repository.ArchiveRepository
	batchSize int64
	events    chan models.MessageView

	mu   sync.Mutex
	self *botModels.User
}

// New 创建 Telegram 客户端
func New(cfg Config, archive repository.ArchiveRepository) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}

	c := &Client{
		archive:   archive,
		batchSize: cfg.BatchSize,
		events:    make(chan models.MessageView, eventBufferSize),
	}
	if c.batchSize < 1 {
		c.batchSize = 100
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(c.handleUpdate),
	}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	c.bot = b

	return c, nil
}

// Connect 开始长轮询接收更新
// 轮询随传入的上下文一起结束
func (c *Client) Connect(ctx context.Context) error {
	go c.bot.Start(ctx)
	logger.L().Info("Telegram long polling started")
	return nil
}

// IsAuthorized 通过 GetMe 验证 token 是否有效
func (c *Client) IsAuthorized(ctx context.Context) (bool, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		if isUnauthorized(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to verify authorization: %w", err)
	}

	c.mu.Lock()
	c.self = me
	c.mu.Unlock()

	logger.L().Infof("Authorized as @%s", me.Username)
	return true, nil
}

// ResolveEntity 将实体引用解析为具体实体
// "me"/"self"/"saved" 解析为当前账号自身
func (c *Client) ResolveEntity(ctx context.Context, ref string) (*models.Entity, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", relay.ErrEntityNotFound)
	}

	switch strings.ToLower(ref) {
	case "me", "self", "saved":
		return c.selfEntity(ctx)
	}

	var chatID any
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		chatID = id
	} else {
		if !strings.HasPrefix(ref, "@") {
			ref = "@" + ref
		}
		chatID = ref
	}

	info, err := c.bot.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil {
		if isEntityLookupFailure(err) {
			return nil, fmt.Errorf("%w: %v (%v)", relay.ErrEntityNotFound, chatID, err)
		}
		return nil, fmt.Errorf("failed to resolve entity %v: %w", chatID, err)
	}

	return &models.Entity{
		ID:       info.ID,
		Title:    chatTitle(info),
		Username: info.Username,
	}, nil
}

// selfEntity 返回当前账号对应的实体
func (c *Client) selfEntity(ctx context.Context) (*models.Entity, error) {
	c.mu.Lock()
	me := c.self
	c.mu.Unlock()

	if me == nil {
		fetched, err := c.bot.GetMe(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve self: %w", err)
		}
		c.mu.Lock()
		c.self = fetched
		c.mu.Unlock()
		me = fetched
	}

	return &models.Entity{
		ID:       me.ID,
		Title:    strings.TrimSpace(me.FirstName + " " + me.LastName),
		Username: me.Username,
		Self:     true,
	}, nil
}

// IterateHistory 从本地档案按升序分批读取历史消息
func (c *Client) IterateHistory(ctx context.Context, chatID int64, afterID int64, fn func(models.MessageView) error) error {
	last := afterID
	for {
		batch, err := c.archive.ListAfter(ctx, chatID, last, c.batchSize)
		if err != nil {
			return fmt.Errorf("failed to read archive for chat %d: %w", chatID, err)
		}
		if len(batch) == 0 {
			return nil
		}

		for _, record := range batch {
			if err := fn(record.View()); err != nil {
				return err
			}
			last = record.MessageID
		}

		if int64(len(batch)) < c.batchSize {
			return nil
		}
	}
}

// Forward 转发消息到目标实体
// 失败时返回分类后的 *relay.ForwardError
func (c *Client) Forward(ctx context.Context, msg models.MessageView, dest *models.Entity) error {
	_, err := c.bot.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:     dest.ID,
		FromChatID: msg.ChatID,
		MessageID:  int(msg.MessageID),
	})
	if err != nil {
		return classifyForwardError(err)
	}
	return nil
}

// SubscribeNewMessages 返回实时消息事件流
func (c *Client) SubscribeNewMessages() <-chan models.MessageView {
	return c.events
}

// Disconnect 释放会话
// 长轮询绑定在 Connect 的上下文上，随其取消而停止
func (c *Client) Disconnect(ctx context.Context) error {
	logger.L().Info("Telegram client disconnected")
	return nil
}

// handleUpdate 处理每条到达的更新
// 消息先落档案（回填依赖这份记录），再投递给实时事件流
func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *botModels.Update) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return
	}

	view := newMessageView(msg)

	if err := c.archive.Save(ctx, archivedFromView(view)); err != nil {
		logger.L().Errorf("Failed to archive message %d from chat %d: %v",
			view.MessageID, view.ChatID, err)
	}

	select {
	case c.events <- view:
	default:
		// 事件缓冲已满；消息已落档案，重启后可经回填补上
		logger.L().Warnf("Event buffer full, message %d from chat %d deferred to backfill",
			view.MessageID, view.ChatID)
	}
}

// chatTitle 返回聊天的显示标题
func chatTitle(info *botModels.ChatFullInfo) string {
	if info.Title != "" {
		return info.Title
	}
	return strings.TrimSpace(info.FirstName + " " + info.LastName)
}
