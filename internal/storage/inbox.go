package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cristianoliveira/badgesync/internal/storage/postgres"
	"github.com/cristianoliveira/badgesync/internal/storage/redis"
	"github.com/cristianoliveira/badgesync/internal/storage/sqlite"
)

// Item is an unread item as the CLI shows it.
type Item struct {
	ID        string
	Message   string
	CreatedAt time.Time
}

// Inbox lists and acknowledges individual unread items.
type Inbox interface {
	// ListUnread returns unread items newest first; limit <= 0 means all.
	ListUnread(ctx context.Context, principal string, limit int) ([]Item, error)
	// MarkRead marks one unread item of principal as read.
	MarkRead(ctx context.Context, principal, id string) error
}

type sqliteInbox struct {
	store *sqlite.Store
}

func (in sqliteInbox) ListUnread(ctx context.Context, principal string, limit int) ([]Item, error) {
	rows, err := in.store.ListUnread(ctx, principal, limit)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(rows))
	for i, r := range rows {
		items[i] = Item{ID: strconv.FormatInt(r.ID, 10), Message: r.Message, CreatedAt: r.CreatedAt}
	}
	return items, nil
}

func (in sqliteInbox) MarkRead(ctx context.Context, principal, id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("sqlite storage: mark read: %w: id %q", sqlite.ErrItemNotFound, id)
	}
	return in.store.MarkRead(ctx, principal, n)
}

type redisInbox struct {
	store *redis.Store
}

func (in redisInbox) ListUnread(ctx context.Context, principal string, limit int) ([]Item, error) {
	rows, err := in.store.ListUnread(ctx, principal, limit)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(rows))
	for i, r := range rows {
		items[i] = Item{ID: r.ID, Message: r.Message, CreatedAt: r.CreatedAt}
	}
	return items, nil
}

func (in redisInbox) MarkRead(ctx context.Context, principal, id string) error {
	return in.store.MarkRead(ctx, principal, id)
}

type postgresInbox struct {
	store *postgres.Store
}

func (in postgresInbox) ListUnread(ctx context.Context, principal string, limit int) ([]Item, error) {
	rows, err := in.store.ListUnread(ctx, principal, limit)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(rows))
	for i, r := range rows {
		items[i] = Item{ID: r.ID, Message: r.Message, CreatedAt: r.CreatedAt}
	}
	return items, nil
}

func (in postgresInbox) MarkRead(ctx context.Context, principal, id string) error {
	return in.store.MarkRead(ctx, principal, id)
}
