package relay

import (
	"context"
	"fmt"
	"strconv"

	"tg_relay/internal/logger"
	"tg_relay/internal/relay/models"
)

// BackfillWorker 按路由回放历史积压
// 从持久化游标之后开始，严格升序处理，绝不重放 ID 不大于游标的消息
type BackfillWorker struct {
	sender *sender
}

// Run 回填单条路由，返回成功转发的消息数量
// 单条消息失败不会中止整条路由；取消信号在消息边界处生效
func (w *BackfillWorker) Run(ctx context.Context, route ActiveRoute) (int, error) {
	entityID := strconv.FormatInt(route.SourceID, 10)

	last, err := w.sender.cursors.Get(ctx, entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to read cursor for %s: %w", route.SourceName, err)
	}

	logger.L().Infof("Backfilling %s from message ID %d", route.SourceName, last)

	count := 0
	err = w.sender.client.IterateHistory(ctx, route.SourceID, last, func(msg models.MessageView) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		forwarded, err := w.sender.relay(ctx, msg, route)
		if err != nil {
			return err
		}
		if forwarded {
			count++
		}
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("backfill of %s aborted after %d messages: %w", route.SourceName, count, err)
	}

	logger.L().Infof("Backfill of %s complete: %d messages forwarded", route.SourceName, count)
	return count, nil
}
