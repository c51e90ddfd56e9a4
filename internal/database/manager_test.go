package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifier/internal/config"
	"notifier/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.DatabaseConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "audit.db"),
		Timeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	m.retryDelay = time.Millisecond
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func broadcast(id, group string, at time.Time) *types.Broadcast {
	return &types.Broadcast{
		ID:        id,
		Group:     group,
		Channel:   types.ChannelEntityCreated,
		Payload:   types.Payload{"id": float64(42), "message": "registered " + id},
		CreatedAt: at,
	}
}

func TestManager_RecordAndList(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, m.RecordBroadcast(ctx, broadcast("b1", "admins", base)))
	require.NoError(t, m.RecordBroadcast(ctx, broadcast("b2", "student:42", base.Add(time.Second))))
	require.NoError(t, m.RecordBroadcast(ctx, broadcast("b3", "admins", base.Add(2*time.Second))))

	all, err := m.RecentBroadcasts(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b3", all[0].ID, "newest first")
	assert.Equal(t, "b1", all[2].ID)

	admins, err := m.RecentBroadcasts(ctx, "admins", 10)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "registered b3", admins[0].Payload.Message())
	assert.Equal(t, float64(42), admins[0].Payload["id"])
	assert.True(t, admins[0].CreatedAt.Equal(base.Add(2*time.Second)))

	limited, err := m.RecentBroadcasts(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestManager_NilPayload(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	b := broadcast("b1", "teacher:5", time.Now())
	b.Payload = nil
	require.NoError(t, m.RecordBroadcast(ctx, b))

	got, err := m.RecentBroadcasts(ctx, "teacher:5", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Payload)
}

func TestManager_DuplicateIDFails(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.RecordBroadcast(ctx, broadcast("dup", "admins", time.Now())))
	err := m.RecordBroadcast(ctx, broadcast("dup", "admins", time.Now()))
	assert.ErrorContains(t, err, "failed to insert broadcast")
}

func TestManager_ConcurrentWrites(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.RecordBroadcast(ctx, broadcast(fmt.Sprintf("b%d", i), "admins", time.Now())))
		}(i)
	}
	wg.Wait()

	got, err := m.RecentBroadcasts(ctx, "admins", MaxHistoryLimit+1)
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestManager_HealthCheckAndClose(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.HealthCheck(ctx))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "close is idempotent")

	err := m.RecordBroadcast(ctx, broadcast("late", "admins", time.Now()))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_InMemory(t *testing.T) {
	m, err := NewManager(config.DatabaseConfig{Path: ":memory:", Timeout: time.Second}, nil)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.RecordBroadcast(context.Background(), broadcast("b1", "admins", time.Now())))
	got, err := m.RecentBroadcasts(context.Background(), "admins", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMigrate_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	cfg := config.DatabaseConfig{Path: path, Timeout: time.Second}

	first, err := NewManager(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, first.RecordBroadcast(context.Background(), broadcast("b1", "admins", time.Now())))
	require.NoError(t, first.Close())

	second, err := NewManager(cfg, nil)
	require.NoError(t, err)
	defer second.Close()

	var versions []string
	require.NoError(t, second.db.Select(&versions, `SELECT version FROM schema_migrations ORDER BY version`))
	assert.Equal(t, []string{"001", "002"}, versions)

	got, err := second.RecentBroadcasts(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1, "existing rows survive a restart")
}
