// Package postgres keeps unread items in a Postgres table and announces
// changes with NOTIFY on a shared channel.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/cristianoliveira/badgesync/internal/badge"
)

const (
	defaultTableName   = "badgesync_items"
	defaultChannel     = "badgesync_changes"
	operationTimeout   = 5 * time.Second
	listenerMinBackoff = 500 * time.Millisecond
	listenerMaxBackoff = 30 * time.Second
	listenerPingEvery  = 90 * time.Second
)

var (
	// ErrEmptyDSN indicates no connection string was configured.
	ErrEmptyDSN = errors.New("postgres dsn cannot be empty")
	// ErrEmptyPrincipal indicates a principal argument was blank.
	ErrEmptyPrincipal = errors.New("principal cannot be empty")
	// ErrEmptyMessage indicates an item was added without a message.
	ErrEmptyMessage = errors.New("message cannot be empty")
	// ErrItemNotFound indicates no unread item of the principal has the ID.
	ErrItemNotFound = errors.New("unread item not found")
)

// Item is one unread row.
type Item struct {
	ID        string
	Principal string
	Message   string
	CreatedAt time.Time
}

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Store satisfies badge.CountSource and badge.EventSource. The table is
// created on first use.
type Store struct {
	dsn       string
	tableName string
	channel   string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewStore validates the DSN without connecting. An empty channel uses the
// default notification channel.
func NewStore(dsn, channel string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres storage: %w", ErrEmptyDSN)
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = defaultChannel
	}
	return &Store{
		dsn:       dsn,
		tableName: defaultTableName,
		channel:   channel,
		openDB:    sql.Open,
	}, nil
}

// Channel returns the NOTIFY channel name.
func (s *Store) Channel() string {
	return s.channel
}

// Close closes the connection pool if it was opened.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureReady() error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = fmt.Errorf("postgres storage: open: %w", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
		defer cancel()

		table := quoteIdentifier(s.tableName)
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				principal TEXT NOT NULL,
				message TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				read_at TIMESTAMPTZ
			)`, table)
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = fmt.Errorf("postgres storage: create table: %w", err)
			return
		}
		index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (principal) WHERE read_at IS NULL`,
			quoteIdentifier(s.tableName+"_unread_idx"), table)
		if _, err := db.ExecContext(ctx, index); err != nil {
			_ = db.Close()
			s.initErr = fmt.Errorf("postgres storage: create index: %w", err)
			return
		}
		s.db = db
	})
	return s.initErr
}

// Add inserts an unread item and notifies listeners in the same transaction.
func (s *Store) Add(ctx context.Context, principal, message string) (string, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return "", fmt.Errorf("postgres storage: add item: %w", ErrEmptyPrincipal)
	}
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("postgres storage: add item: %w", ErrEmptyMessage)
	}
	if err := s.ensureReady(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`INSERT INTO %s (id, principal, message) VALUES ($1, $2, $3)`, quoteIdentifier(s.tableName))
		if _, err := tx.ExecContext(ctx, query, id, principal, message); err != nil {
			return err
		}
		return s.notify(ctx, tx, badge.ChangeEvent{Kind: badge.Inserted, Principal: principal, At: time.Now().UTC()})
	})
	if err != nil {
		return "", fmt.Errorf("postgres storage: add item: %w", err)
	}
	return id, nil
}

// FetchCount counts the principal's unread rows.
func (s *Store) FetchCount(ctx context.Context, principal string) (uint, error) {
	if err := s.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE principal = $1 AND read_at IS NULL`, quoteIdentifier(s.tableName))
	var n int64
	if err := s.db.QueryRowContext(ctx, query, principal).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres storage: count unread: %w", err)
	}
	return uint(n), nil
}

// MarkAllRead stamps every unread row of the principal and notifies when
// anything changed.
func (s *Store) MarkAllRead(ctx context.Context, principal string) (int64, error) {
	if strings.TrimSpace(principal) == "" {
		return 0, fmt.Errorf("postgres storage: mark all read: %w", ErrEmptyPrincipal)
	}
	if err := s.ensureReady(); err != nil {
		return 0, err
	}

	var changed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`UPDATE %s SET read_at = NOW() WHERE principal = $1 AND read_at IS NULL`, quoteIdentifier(s.tableName))
		res, err := tx.ExecContext(ctx, query, principal)
		if err != nil {
			return err
		}
		if changed, err = res.RowsAffected(); err != nil {
			return err
		}
		if changed == 0 {
			return nil
		}
		return s.notify(ctx, tx, badge.ChangeEvent{Kind: badge.Updated, Principal: principal, At: time.Now().UTC()})
	})
	if err != nil {
		return 0, fmt.Errorf("postgres storage: mark all read: %w", err)
	}
	return changed, nil
}

// MarkRead stamps one unread row of the principal and notifies listeners.
func (s *Store) MarkRead(ctx context.Context, principal, id string) error {
	if strings.TrimSpace(principal) == "" {
		return fmt.Errorf("postgres storage: mark read: %w", ErrEmptyPrincipal)
	}
	if err := s.ensureReady(); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`UPDATE %s SET read_at = NOW() WHERE id = $1 AND principal = $2 AND read_at IS NULL`, quoteIdentifier(s.tableName))
		res, err := tx.ExecContext(ctx, query, id, principal)
		if err != nil {
			return err
		}
		changed, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if changed == 0 {
			return fmt.Errorf("%w: id %s", ErrItemNotFound, id)
		}
		return s.notify(ctx, tx, badge.ChangeEvent{Kind: badge.Updated, Principal: principal, At: time.Now().UTC()})
	})
	if err != nil {
		return fmt.Errorf("postgres storage: mark read: %w", err)
	}
	return nil
}

// ListUnread returns the principal's unread rows, newest first. A
// non-positive limit returns all of them.
func (s *Store) ListUnread(ctx context.Context, principal string, limit int) ([]Item, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT id, principal, message, created_at FROM %s WHERE principal = $1 AND read_at IS NULL ORDER BY created_at DESC, id DESC`, quoteIdentifier(s.tableName))
	args := []any{principal}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres storage: list unread: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Principal, &item.Message, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres storage: scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres storage: list unread: %w", err)
	}
	return items, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// notify is delivered on commit, so listeners never see uncommitted changes.
func (s *Store) notify(ctx context.Context, tx *sql.Tx, ev badge.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, s.channel, string(payload))
	return err
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
