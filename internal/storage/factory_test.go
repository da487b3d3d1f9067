package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristianoliveira/badgesync/internal/config"
	"github.com/cristianoliveira/badgesync/internal/storage/postgres"
	"github.com/cristianoliveira/badgesync/internal/storage/redis"
	"github.com/cristianoliveira/badgesync/internal/storage/sqlite"
	"github.com/cristianoliveira/badgesync/internal/transport/ws"
)

func sqliteSettings(t *testing.T) Settings {
	t.Helper()
	return Settings{
		CountBackend: BackendSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "badgesync.db"),
		RedisPrefix:  "test",
	}
}

func TestOpenSQLite(t *testing.T) {
	b, err := Open(sqliteSettings(t))
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, BackendSQLite, b.Name)
	assert.IsType(t, &sqlite.Store{}, b.Counts)

	ctx := context.Background()
	id, err := b.Writer.Add(ctx, "alice", "hello")
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	n, err := b.Counts.FetchCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(1), n)

	changed, err := b.Writer.MarkAllRead(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)
}

func TestSQLiteInbox(t *testing.T) {
	b, err := Open(sqliteSettings(t))
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	first, err := b.Writer.Add(ctx, "alice", "first")
	require.NoError(t, err)
	_, err = b.Writer.Add(ctx, "alice", "second")
	require.NoError(t, err)

	items, err := b.Inbox.ListUnread(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "second", items[0].Message)
	assert.Equal(t, first, items[1].ID)

	require.NoError(t, b.Inbox.MarkRead(ctx, "alice", first))
	require.ErrorIs(t, b.Inbox.MarkRead(ctx, "alice", "not-a-number"), sqlite.ErrItemNotFound)

	n, err := b.Counts.FetchCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(1), n)
}

func TestRedisInbox(t *testing.T) {
	mr := miniredis.RunT(t)
	b, err := Open(Settings{CountBackend: BackendRedis, RedisAddr: mr.Addr(), RedisPrefix: "inbox"})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	id, err := b.Writer.Add(ctx, "alice", "hello")
	require.NoError(t, err)

	items, err := b.Inbox.ListUnread(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, "hello", items[0].Message)

	require.NoError(t, b.Inbox.MarkRead(ctx, "alice", id))
	require.ErrorIs(t, b.Inbox.MarkRead(ctx, "alice", id), redis.ErrItemNotFound)
}

func TestOpenUnknownFallsBackToSQLite(t *testing.T) {
	s := sqliteSettings(t)
	s.CountBackend = "tsv"
	b, err := Open(s)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, BackendSQLite, b.Name)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := Open(Settings{CountBackend: BackendSQLite})
	require.ErrorIs(t, err, sqlite.ErrEmptyPath)
}

func TestOpenRedisSharesClientWithEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	s := sqliteSettings(t)
	s.CountBackend = BackendRedis
	s.RedisAddr = mr.Addr()

	b, err := Open(s)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, BackendRedis, b.Name)
	events, err := b.Events(BackendRedis)
	require.NoError(t, err)
	assert.Same(t, b.Counts, events)

	_, err = b.Writer.Add(context.Background(), "alice", "msg")
	require.NoError(t, err)
	n, err := b.Counts.FetchCount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(1), n)
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	_, err := Open(Settings{CountBackend: BackendPostgres})
	require.ErrorIs(t, err, ErrMissingSetting)

	b, err := Open(Settings{CountBackend: BackendPostgres, PostgresDSN: "postgres://localhost/db"})
	require.NoError(t, err)
	defer b.Close()
	assert.IsType(t, &postgres.Store{}, b.Counts)
}

func TestEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	s := sqliteSettings(t)
	s.RedisAddr = mr.Addr()
	s.WebSocketURL = "ws://localhost:9999/events"
	s.PostgresDSN = "postgres://localhost/db"

	b, err := Open(s)
	require.NoError(t, err)
	defer b.Close()

	src, err := b.Events(EventsNone)
	require.NoError(t, err)
	assert.Nil(t, src)

	src, err = b.Events(EventsAuto)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Watcher{}, src)

	src, err = b.Events("SQLite")
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Watcher{}, src)

	src, err = b.Events(BackendRedis)
	require.NoError(t, err)
	assert.IsType(t, &redis.Store{}, src)

	src, err = b.Events(BackendPostgres)
	require.NoError(t, err)
	assert.IsType(t, &postgres.Store{}, src)

	src, err = b.Events(EventsWebSocket)
	require.NoError(t, err)
	assert.IsType(t, &ws.Client{}, src)

	_, err = b.Events("kafka")
	require.ErrorIs(t, err, ErrUnknownEventBackend)
}

func TestEventsMissingSettings(t *testing.T) {
	b, err := Open(sqliteSettings(t))
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Events(EventsWebSocket)
	require.ErrorIs(t, err, ErrMissingSetting)
}

func TestSettingsFromConfig(t *testing.T) {
	config.Set("count_backend", "redis")
	config.Set("redis_addr", "cache:6380")
	config.Set("redis_db", "2")
	t.Cleanup(func() {
		config.Set("count_backend", "sqlite")
		config.Set("redis_addr", "localhost:6379")
		config.Set("redis_db", "0")
	})

	s := SettingsFromConfig()
	assert.Equal(t, "redis", s.CountBackend)
	assert.Equal(t, "cache:6380", s.RedisAddr)
	assert.Equal(t, 2, s.RedisDB)
}
