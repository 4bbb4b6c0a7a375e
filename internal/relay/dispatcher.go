package relay

import (
	"context"
	"sync"

	"tg_relay/internal/logger"
	"tg_relay/internal/relay/models"
)

// 每个来源聊天的事件队列容量
const defaultQueueSize = 64

// LiveDispatcher 实时事件分发器
// 每个来源聊天一条串行队列，保证同聊天内的处理顺序；
// 不同聊天并发处理，共享同一个限速/退避闸门
type LiveDispatcher struct {
	sender *sender
	routes map[int64]ActiveRoute

	mu     sync.Mutex
	queues map[int64]chan models.MessageView
	closed bool
	wg     sync.WaitGroup
	fatal  chan error
}

// NewLiveDispatcher 创建实时分发器
func NewLiveDispatcher(snd *sender, routes map[int64]ActiveRoute) *LiveDispatcher {
	return &LiveDispatcher{
		sender: snd,
		routes: routes,
		queues: make(map[int64]chan models.MessageView),
		fatal:  make(chan error, 1),
	}
}

// Fatal 返回致命错误通知通道
// 任一 worker 遇到会话级错误时在此通道报告一次，由引擎中止实时阶段
func (d *LiveDispatcher) Fatal() <-chan error { return d.fatal }

// Dispatch 分发一条实时消息事件
// 不在活跃路由表中的聊天直接忽略；单个聊天的队列满时丢弃该事件，
// 不阻塞其它聊天的事件流（消息已落档案，重启回填可补上）
func (d *LiveDispatcher) Dispatch(ctx context.Context, msg models.MessageView) {
	if _, ok := d.routes[msg.ChatID]; !ok {
		logger.L().Debugf("Ignoring message %d from unmonitored chat %d", msg.MessageID, msg.ChatID)
		return
	}

	queue := d.queue(ctx, msg.ChatID)
	if queue == nil {
		return
	}

	select {
	case queue <- msg:
	case <-ctx.Done():
	default:
		logger.L().Warnf("Queue full for chat %d, message %d deferred to backfill",
			msg.ChatID, msg.MessageID)
	}
}

// queue 返回聊天对应的队列，必要时创建队列和对应的 worker
func (d *LiveDispatcher) queue(ctx context.Context, chatID int64) chan models.MessageView {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}

	queue, ok := d.queues[chatID]
	if !ok {
		queue = make(chan models.MessageView, defaultQueueSize)
		d.queues[chatID] = queue
		d.wg.Add(1)
		go d.worker(ctx, chatID, queue)
	}
	return queue
}

// worker 串行处理单个聊天的事件队列
// 单条消息失败只记录并计数，不影响后续事件
func (d *LiveDispatcher) worker(ctx context.Context, chatID int64, queue <-chan models.MessageView) {
	defer d.wg.Done()

	route := d.routes[chatID]
	logger.L().Debugf("Dispatch worker started for chat %d (%s)", chatID, route.SourceName)

	for msg := range queue {
		if ctx.Err() != nil {
			continue // 会话已结束，清空队列退出
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					d.sender.stats.markError()
					logger.L().Errorf("Dispatch worker for chat %d: panic recovered: %v", chatID, r)
				}
			}()

			// relay 内部已处理消息级失败；返回的非取消错误都是会话级的
			if _, err := d.sender.relay(ctx, msg, route); err != nil && ctx.Err() == nil {
				logger.L().Errorf("Live relay of message %d from chat %d failed: %v",
					msg.MessageID, chatID, err)
				select {
				case d.fatal <- err:
				default:
				}
			}
		}()
	}

	logger.L().Debugf("Dispatch worker stopped for chat %d", chatID)
}

// Close 关闭所有队列并等待 worker 退出
func (d *LiveDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, queue := range d.queues {
		close(queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
