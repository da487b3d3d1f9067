// Package storage selects and wires the unread-item backends used by the
// badge engine and the CLI.
package storage

import (
	"context"
	"errors"
	"strconv"

	"github.com/cristianoliveira/badgesync/internal/badge"
	"github.com/cristianoliveira/badgesync/internal/storage/sqlite"
)

const (
	// BackendSQLite selects the local SQLite database.
	BackendSQLite = "sqlite"
	// BackendPostgres selects a Postgres table with LISTEN/NOTIFY.
	BackendPostgres = "postgres"
	// BackendRedis selects Redis sets with Pub/Sub.
	BackendRedis = "redis"
	// EventsAuto uses the event mechanism of the count backend.
	EventsAuto = "auto"
	// EventsNone disables push events; the badge refreshes only on request.
	EventsNone = "none"
	// EventsWebSocket selects a WebSocket push endpoint.
	EventsWebSocket = "websocket"
)

var (
	// ErrUnknownEventBackend indicates an event backend name is not supported.
	ErrUnknownEventBackend = errors.New("unknown event backend")
	// ErrMissingSetting indicates a backend was selected without its connection setting.
	ErrMissingSetting = errors.New("missing backend setting")
)

// Writer is the mutating side of a backend.
type Writer interface {
	// Add stores an unread item and returns its ID.
	Add(ctx context.Context, principal, message string) (string, error)
	// MarkAllRead marks every unread item of principal as read and returns how many changed.
	MarkAllRead(ctx context.Context, principal string) (int64, error)
}

// Backend bundles the count source, writer and inbox of one storage
// backend. Close releases every client the backend opened, including event
// sources.
type Backend struct {
	Name   string
	Counts badge.CountSource
	Writer Writer
	Inbox  Inbox

	settings Settings
	closers  []func() error
}

// Close releases all clients in reverse order of creation.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *Backend) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// sqliteWriter adapts the integer IDs of the SQLite store.
type sqliteWriter struct {
	store *sqlite.Store
}

func (w sqliteWriter) Add(ctx context.Context, principal, message string) (string, error) {
	id, err := w.store.Add(ctx, principal, message)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func (w sqliteWriter) MarkAllRead(ctx context.Context, principal string) (int64, error) {
	return w.store.MarkAllRead(ctx, principal)
}
