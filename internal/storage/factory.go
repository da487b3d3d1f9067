package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cristianoliveira/badgesync/internal/badge"
	"github.com/cristianoliveira/badgesync/internal/colors"
	"github.com/cristianoliveira/badgesync/internal/config"
	"github.com/cristianoliveira/badgesync/internal/storage/postgres"
	"github.com/cristianoliveira/badgesync/internal/storage/redis"
	"github.com/cristianoliveira/badgesync/internal/storage/sqlite"
	"github.com/cristianoliveira/badgesync/internal/transport/ws"
)

const pingTimeout = 2 * time.Second

// Settings holds the connection settings of every backend.
type Settings struct {
	CountBackend    string
	EventBackend    string
	SQLitePath      string
	PostgresDSN     string
	PostgresChannel string
	RedisAddr       string
	RedisDB         int
	RedisPrefix     string
	WebSocketURL    string
}

// SettingsFromConfig reads backend settings from the loaded configuration.
func SettingsFromConfig() Settings {
	return Settings{
		CountBackend:    config.Get("count_backend", BackendSQLite),
		EventBackend:    config.Get("event_backend", EventsAuto),
		SQLitePath:      config.Get("sqlite_path", ""),
		PostgresDSN:     config.Get("postgres_dsn", ""),
		PostgresChannel: config.Get("postgres_channel", ""),
		RedisAddr:       config.Get("redis_addr", "localhost:6379"),
		RedisDB:         config.GetInt("redis_db", 0),
		RedisPrefix:     config.Get("redis_prefix", "badgesync"),
		WebSocketURL:    config.Get("ws_url", ""),
	}
}

// NewFromConfig opens the count backend named in the configuration.
func NewFromConfig() (*Backend, error) {
	return Open(SettingsFromConfig())
}

// Open opens the count backend named by s.CountBackend. Unknown names fall
// back to SQLite with a warning.
func Open(s Settings) (*Backend, error) {
	name := normalize(s.CountBackend)
	b := &Backend{Name: name, settings: s}

	switch name {
	case BackendSQLite:
		if err := b.openSQLite(); err != nil {
			return nil, err
		}
	case BackendPostgres:
		store, err := b.postgresStore()
		if err != nil {
			return nil, err
		}
		b.Counts, b.Writer, b.Inbox = store, store, postgresInbox{store: store}
	case BackendRedis:
		store, err := b.redisStore()
		if err != nil {
			return nil, err
		}
		b.Counts, b.Writer, b.Inbox = store, store, redisInbox{store: store}
	default:
		colors.Warning(fmt.Sprintf("unknown count backend '%s', falling back to sqlite", s.CountBackend))
		b.Name = BackendSQLite
		if err := b.openSQLite(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Events builds the event source named by name, reusing the clients already
// opened for counting when the backends match. An empty name uses the
// configured event backend, "auto" follows the count backend and "none"
// returns a nil source.
func (b *Backend) Events(name string) (badge.EventSource, error) {
	name = normalize(name)
	if name == "" {
		name = normalize(b.settings.EventBackend)
	}
	if name == "" || name == EventsAuto {
		name = b.Name
	}
	switch name {
	case EventsNone:
		return nil, nil
	case BackendSQLite:
		if strings.TrimSpace(b.settings.SQLitePath) == "" {
			return nil, fmt.Errorf("storage: sqlite events: %w: sqlite_path", ErrMissingSetting)
		}
		return sqlite.NewWatcher(b.settings.SQLitePath), nil
	case BackendPostgres:
		store, err := b.postgresStore()
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendRedis:
		store, err := b.redisStore()
		if err != nil {
			return nil, err
		}
		return store, nil
	case EventsWebSocket:
		if strings.TrimSpace(b.settings.WebSocketURL) == "" {
			return nil, fmt.Errorf("storage: websocket events: %w: ws_url", ErrMissingSetting)
		}
		client, err := ws.NewClient(b.settings.WebSocketURL)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("storage: %w: %q", ErrUnknownEventBackend, name)
	}
}

func (b *Backend) openSQLite() error {
	store, err := sqlite.NewStore(b.settings.SQLitePath)
	if err != nil {
		return err
	}
	b.onClose(store.Close)
	b.Counts = store
	b.Writer = sqliteWriter{store: store}
	b.Inbox = sqliteInbox{store: store}
	return nil
}

func (b *Backend) postgresStore() (*postgres.Store, error) {
	if store, ok := b.Counts.(*postgres.Store); ok {
		return store, nil
	}
	if strings.TrimSpace(b.settings.PostgresDSN) == "" {
		return nil, fmt.Errorf("storage: postgres: %w: postgres_dsn", ErrMissingSetting)
	}
	store, err := postgres.NewStore(b.settings.PostgresDSN, b.settings.PostgresChannel)
	if err != nil {
		return nil, err
	}
	b.onClose(store.Close)
	return store, nil
}

func (b *Backend) redisStore() (*redis.Store, error) {
	if store, ok := b.Counts.(*redis.Store); ok {
		return store, nil
	}
	store, err := redis.NewStore(&goredis.Options{Addr: b.settings.RedisAddr, DB: b.settings.RedisDB}, b.settings.RedisPrefix)
	if err != nil {
		return nil, err
	}
	b.onClose(store.Close)
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		colors.Warning(fmt.Sprintf("redis at %s is not reachable yet: %v", b.settings.RedisAddr, err))
	}
	return store, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
