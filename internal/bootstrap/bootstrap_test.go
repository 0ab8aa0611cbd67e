package bootstrap_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErlanBelekov/triggerd/config"
	"github.com/ErlanBelekov/triggerd/internal/bootstrap"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewActions_DefaultKinds(t *testing.T) {
	cfg := &config.Config{Env: "local", ActionTimeoutSec: 5, WebhookBreakerFailures: 3}

	a, err := bootstrap.NewActions(cfg, discard())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"email", "log", "webhook"}, a.Registry.Kinds())
	assert.Empty(t, a.Health)
}

func TestNewActions_RedisAddsQueueKinds(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{Env: "local", ActionTimeoutSec: 5, RedisURL: "redis://" + mr.Addr(), RedisKeyPrefix: "t:"}

	a, err := bootstrap.NewActions(cfg, discard())
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Registry.Has("redis"))
	assert.True(t, a.Registry.Has("asynq"))
	require.Len(t, a.Health, 1)
	assert.NoError(t, a.Health[0].Pinger.Ping(context.Background()))
}

func TestOpenStore_SQLite(t *testing.T) {
	cfg := &config.Config{StoreDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "t.db")}

	store, err := bootstrap.OpenStore(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "store", store.Health.Name)
	assert.NoError(t, store.Health.Pinger.Ping(context.Background()))
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := bootstrap.OpenStore(context.Background(), &config.Config{StoreDriver: "mysql"}, discard())
	assert.Error(t, err)
}
