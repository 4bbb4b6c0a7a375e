package relay

import (
	"context"
	"errors"
	"testing"

	"tg_relay/internal/relay/models"
)

func TestBackfillIdempotentResume(t *testing.T) {
	platform := newFakePlatform()
	cursors := newFakeCursorRepo()

	// 历史包含游标之前和之后的消息
	platform.addHistory(1001,
		textMessage(1001, 98),
		textMessage(1001, 99),
		textMessage(1001, 100),
		textMessage(1001, 101),
		textMessage(1001, 102),
	)
	_ = cursors.SetIfGreater(context.Background(), "1001", 100)
	cursors.writes = nil

	snd := newTestSender(platform, cursors, models.FilterConfig{TextMessages: true})
	defer snd.limiter.Close()

	worker := &BackfillWorker{sender: snd}
	count, err := worker.Run(context.Background(), testRoute(1001))
	if err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	if count != 2 {
		t.Fatalf("expected 2 forwarded, got %d", count)
	}
	ids := platform.forwardedIDs()
	if len(ids) != 2 || ids[0] != 101 || ids[1] != 102 {
		t.Fatalf("expected [101 102] in order, got %v", ids)
	}
	if got := cursors.get("1001"); got != 102 {
		t.Fatalf("expected cursor 102, got %d", got)
	}
}

func TestBackfillCursorAdvancesOnlyAfterForward(t *testing.T) {
	platform := newFakePlatform()
	cursors := newFakeCursorRepo()

	platform.addHistory(1001, textMessage(1001, 1), textMessage(1001, 2))

	snd := newTestSender(platform, cursors, models.FilterConfig{TextMessages: true})
	defer snd.limiter.Close()

	worker := &BackfillWorker{sender: snd}
	if _, err := worker.Run(context.Background(), testRoute(1001)); err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	// 每次游标写入都必须对应一次已完成的转发
	if len(cursors.writes) != 2 {
		t.Fatalf("expected 2 cursor writes, got %d", len(cursors.writes))
	}
	for i, write := range cursors.writes {
		if write.messageID != platform.forwardedIDs()[i] {
			t.Fatalf("cursor write %d targets %d, forwarded %d",
				i, write.messageID, platform.forwardedIDs()[i])
		}
	}
}

func TestBackfillMessageFailureDoesNotAbortRoute(t *testing.T) {
	platform := newFakePlatform()
	cursors := newFakeCursorRepo()

	platform.addHistory(1001,
		textMessage(1001, 1),
		textMessage(1001, 2),
		textMessage(1001, 3),
	)
	platform.failForward(2, NewPermanentError(errors.New("rejected")))

	snd := newTestSender(platform, cursors, models.FilterConfig{TextMessages: true})
	defer snd.limiter.Close()

	worker := &BackfillWorker{sender: snd}
	count, err := worker.Run(context.Background(), testRoute(1001))
	if err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	if count != 2 {
		t.Fatalf("expected 2 forwarded, got %d", count)
	}
	ids := platform.forwardedIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Fatalf("expected [1 3], got %v", ids)
	}
	if snd.stats.errors.Load() != 1 {
		t.Fatalf("expected 1 error, got %d", snd.stats.errors.Load())
	}
	// 失败的消息不推进游标，后续成功的会
	if got := cursors.get("1001"); got != 3 {
		t.Fatalf("expected cursor 3, got %d", got)
	}
}

func TestBackfillHonorsCancellation(t *testing.T) {
	platform := newFakePlatform()
	cursors := newFakeCursorRepo()

	for id := int64(1); id <= 50; id++ {
		platform.addHistory(1001, textMessage(1001, id))
	}

	snd := newTestSender(platform, cursors, models.FilterConfig{TextMessages: true})
	defer snd.limiter.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker := &BackfillWorker{sender: snd}
	_, err := worker.Run(ctx, testRoute(1001))
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(platform.forwardedIDs()) != 0 {
		t.Fatal("cancelled backfill must not forward")
	}
}

// 端到端场景：游标 100，历史 101..105，其中 103 是被过滤的文档
func TestBackfillEndToEndScenario(t *testing.T) {
	platform := newFakePlatform()
	cursors := newFakeCursorRepo()

	platform.addHistory(1001,
		textMessage(1001, 101),
		textMessage(1001, 102),
		models.MessageView{ChatID: 1001, MessageID: 103, Media: models.MediaDocument},
		textMessage(1001, 104),
		textMessage(1001, 105),
	)
	_ = cursors.SetIfGreater(context.Background(), "1001", 100)

	filters := models.FilterConfig{
		Photos:       true,
		Videos:       true,
		Documents:    false,
		TextMessages: true,
	}

	snd := newTestSender(platform, cursors, filters)
	defer snd.limiter.Close()

	worker := &BackfillWorker{sender: snd}
	count, err := worker.Run(context.Background(), testRoute(1001))
	if err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	if count != 4 {
		t.Fatalf("expected 4 forwarded, got %d", count)
	}
	ids := platform.forwardedIDs()
	want := []int64{101, 102, 104, 105}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
	if got := cursors.get("1001"); got != 105 {
		t.Fatalf("expected cursor 105, got %d", got)
	}
	if snd.stats.errors.Load() != 0 {
		t.Fatalf("expected 0 errors, got %d", snd.stats.errors.Load())
	}
}
