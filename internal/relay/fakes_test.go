package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tg_relay/internal/relay/models"
)

// fakePlatform 测试用平台客户端
// history 按消息 ID 升序存放；forwardErrs 为每条消息预置的失败序列，
// 依次弹出后转发成功
type fakePlatform struct {
	mu          sync.Mutex
	entities    map[string]*models.Entity
	history     map[int64][]models.MessageView
	forwardErrs map[int64][]error
	forwarded   []forwardCall
	events      chan models.MessageView
	authorized  bool
	connectErr  error
	connected   bool

	forwardGate  chan struct{} // 非 nil 时每次转发先等待放行
	forwardDelay time.Duration // 每次转发的固定耗时
}

type forwardCall struct {
	msg  models.MessageView
	dest *models.Entity
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		entities:    make(map[string]*models.Entity),
		history:     make(map[int64][]models.MessageView),
		forwardErrs: make(map[int64][]error),
		events:      make(chan models.MessageView, 32),
		authorized:  true,
	}
}

func (f *fakePlatform) addEntity(ref string, entity *models.Entity) {
	f.entities[ref] = entity
}

func (f *fakePlatform) addHistory(chatID int64, msgs ...models.MessageView) {
	f.history[chatID] = append(f.history[chatID], msgs...)
}

func (f *fakePlatform) failForward(messageID int64, errs ...error) {
	f.forwardErrs[messageID] = append(f.forwardErrs[messageID], errs...)
}

func (f *fakePlatform) forwardedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.forwarded))
	for _, call := range f.forwarded {
		ids = append(ids, call.msg.MessageID)
	}
	return ids
}

func (f *fakePlatform) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakePlatform) IsAuthorized(ctx context.Context) (bool, error) {
	return f.authorized, nil
}

func (f *fakePlatform) ResolveEntity(ctx context.Context, ref string) (*models.Entity, error) {
	if entity, ok := f.entities[ref]; ok {
		return entity, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, ref)
}

func (f *fakePlatform) IterateHistory(ctx context.Context, chatID int64, afterID int64, fn func(models.MessageView) error) error {
	for _, msg := range f.history[chatID] {
		if msg.MessageID <= afterID {
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakePlatform) Forward(ctx context.Context, msg models.MessageView, dest *models.Entity) error {
	if f.forwardGate != nil {
		select {
		case <-f.forwardGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.forwardDelay > 0 {
		timer := time.NewTimer(f.forwardDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if queue := f.forwardErrs[msg.MessageID]; len(queue) > 0 {
		err := queue[0]
		f.forwardErrs[msg.MessageID] = queue[1:]
		return err
	}

	f.forwarded = append(f.forwarded, forwardCall{msg: msg, dest: dest})
	return nil
}

func (f *fakePlatform) SubscribeNewMessages() <-chan models.MessageView {
	return f.events
}

func (f *fakePlatform) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

// fakeCursorRepo 内存游标存储，保持严格单调
type fakeCursorRepo struct {
	mu      sync.Mutex
	cursors map[string]int64
	writes  []cursorWrite
}

type cursorWrite struct {
	entityID  string
	messageID int64
}

func newFakeCursorRepo() *fakeCursorRepo {
	return &fakeCursorRepo{cursors: make(map[string]int64)}
}

func (f *fakeCursorRepo) Get(ctx context.Context, entityID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursors[entityID], nil
}

func (f *fakeCursorRepo) SetIfGreater(ctx context.Context, entityID string, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, cursorWrite{entityID: entityID, messageID: messageID})
	if messageID > f.cursors[entityID] {
		f.cursors[entityID] = messageID
	}
	return nil
}

func (f *fakeCursorRepo) MaxMessageID(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max int64
	for _, id := range f.cursors {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (f *fakeCursorRepo) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.cursors)), nil
}

func (f *fakeCursorRepo) EnsureIndexes(ctx context.Context) error { return nil }

func (f *fakeCursorRepo) get(entityID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursors[entityID]
}

// fakeRouteRepo 内存路由存储
type fakeRouteRepo struct {
	mu     sync.Mutex
	routes []*models.Route
}

func (f *fakeRouteRepo) Upsert(ctx context.Context, route *models.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.routes {
		if existing.Source == route.Source {
			existing.Destination = route.Destination
			return nil
		}
	}
	f.routes = append(f.routes, route)
	return nil
}

func (f *fakeRouteRepo) Remove(ctx context.Context, source string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, route := range f.routes {
		if route.Source == source {
			f.routes = append(f.routes[:i], f.routes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRouteRepo) List(ctx context.Context) ([]*models.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Route, len(f.routes))
	copy(out, f.routes)
	return out, nil
}

func (f *fakeRouteRepo) EnsureIndexes(ctx context.Context) error { return nil }

// fakeFilterRepo 内存过滤配置存储
type fakeFilterRepo struct {
	mu  sync.Mutex
	cfg models.FilterConfig
}

func (f *fakeFilterRepo) Get(ctx context.Context) (models.FilterConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg, nil
}

func (f *fakeFilterRepo) Set(ctx context.Context, cfg models.FilterConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	return nil
}
