package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"tg_relay/internal/relay/models"
)

type memRouteRepo struct {
	mu     sync.Mutex
	routes map[string]*models.Route
}

func newMemRouteRepo() *memRouteRepo {
	return &memRouteRepo{routes: make(map[string]*models.Route)}
}

func (m *memRouteRepo) Upsert(ctx context.Context, route *models.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[route.Source] = route
	return nil
}

func (m *memRouteRepo) Remove(ctx context.Context, source string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[source]; !ok {
		return false, nil
	}
	delete(m.routes, source)
	return true, nil
}

func (m *memRouteRepo) List(ctx context.Context) ([]*models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Route, 0, len(m.routes))
	for _, route := range m.routes {
		out = append(out, route)
	}
	return out, nil
}

func (m *memRouteRepo) EnsureIndexes(ctx context.Context) error { return nil }

type memFilterRepo struct {
	mu  sync.Mutex
	cfg *models.FilterConfig
}

func (m *memFilterRepo) Get(ctx context.Context) (models.FilterConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return models.DefaultFilterConfig(), nil
	}
	return *m.cfg, nil
}

func (m *memFilterRepo) Set(ctx context.Context, cfg models.FilterConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = &cfg
	return nil
}

func TestAddRouteOverwritesExistingSource(t *testing.T) {
	routes := newMemRouteRepo()
	svc := NewRouteService(routes, &memFilterRepo{})
	ctx := context.Background()

	_, err := svc.AddRoute(ctx, "1001", "old_dest")
	require.NoError(t, err)

	_, err = svc.AddRoute(ctx, "1001", "new_dest")
	require.NoError(t, err)

	listed, err := svc.ListRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "new_dest", listed[0].Destination)
}

func TestAddRouteNormalizesRefs(t *testing.T) {
	routes := newMemRouteRepo()
	svc := NewRouteService(routes, &memFilterRepo{})
	ctx := context.Background()

	route, err := svc.AddRoute(ctx, " @news_channel ", "SELF")
	require.NoError(t, err)
	require.Equal(t, "news_channel", route.Source)
	require.Equal(t, models.SelfRef, route.Destination)
}

func TestAddRouteRejectsEmptyRefs(t *testing.T) {
	svc := NewRouteService(newMemRouteRepo(), &memFilterRepo{})
	ctx := context.Background()

	_, err := svc.AddRoute(ctx, "", "me")
	require.Error(t, err)

	_, err = svc.AddRoute(ctx, "1001", "  ")
	require.Error(t, err)
}

func TestRemoveRoute(t *testing.T) {
	routes := newMemRouteRepo()
	svc := NewRouteService(routes, &memFilterRepo{})
	ctx := context.Background()

	_, err := svc.AddRoute(ctx, "1001", "me")
	require.NoError(t, err)

	require.NoError(t, svc.RemoveRoute(ctx, "1001"))

	err = svc.RemoveRoute(ctx, "1001")
	require.True(t, errors.Is(err, ErrRouteNotFound))
}

func TestUpdateFiltersPartial(t *testing.T) {
	filters := &memFilterRepo{}
	svc := NewRouteService(newMemRouteRepo(), filters)
	ctx := context.Background()

	enabled := true
	updated, err := svc.UpdateFilters(ctx, models.FilterUpdate{Documents: &enabled})
	require.NoError(t, err)

	// 只改 documents，其余保持默认
	want := models.DefaultFilterConfig()
	want.Documents = true
	require.Equal(t, want, updated)
}

func TestUpdateFiltersEmptyUpdateIsReadOnly(t *testing.T) {
	filters := &memFilterRepo{}
	svc := NewRouteService(newMemRouteRepo(), filters)
	ctx := context.Background()

	current, err := svc.UpdateFilters(ctx, models.FilterUpdate{})
	require.NoError(t, err)
	require.Equal(t, models.DefaultFilterConfig(), current)
	require.Nil(t, filters.cfg) // 没有发生写入
}

func TestNormalizeRef(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "numeric id unchanged", in: "1001", want: "1001"},
		{name: "username loses at sign", in: "@channel", want: "channel"},
		{name: "whitespace trimmed", in: "  channel \n", want: "channel"},
		{name: "self becomes me", in: "self", want: "me"},
		{name: "saved becomes me", in: "Saved", want: "me"},
		{name: "me stays me", in: "me", want: "me"},
		{name: "empty stays empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeRef(tt.in); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
