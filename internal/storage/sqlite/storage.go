// Package sqlite stores unread items in a local SQLite database and serves
// the authoritative unread count from it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	principal  TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	read_at    TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_principal_unread ON items(principal, read_at);
`

// Item is one unread activity record.
type Item struct {
	ID        int64
	Principal string
	Message   string
	CreatedAt time.Time
}

// Store is a SQLite-backed unread item store. It satisfies badge.CountSource.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("sqlite storage: %w", ErrEmptyPath)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite storage: create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: open db: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) init() error {
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("sqlite storage: set busy timeout: %w", err)
	}
	// WAL lets the watcher observe commits from other processes while a
	// reader holds the database open.
	if _, err := s.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("sqlite storage: enable wal: %w", err)
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("sqlite storage: create schema: %w", err)
	}
	return nil
}

// Add inserts an unread item for principal and returns its ID.
func (s *Store) Add(ctx context.Context, principal, message string) (int64, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return 0, fmt.Errorf("sqlite storage: add item: %w", ErrEmptyPrincipal)
	}
	if strings.TrimSpace(message) == "" {
		return 0, fmt.Errorf("sqlite storage: add item: %w", ErrEmptyMessage)
	}

	now := utcNow()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO items (principal, message, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		principal, message, now, now)
	if err != nil {
		return 0, fmt.Errorf("sqlite storage: add item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite storage: add item: %w", err)
	}
	return id, nil
}

// FetchCount returns the number of unread items for principal.
func (s *Store) FetchCount(ctx context.Context, principal string) (uint, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE principal = ? AND read_at = ''`,
		principal).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite storage: count unread: %w", err)
	}
	return uint(n), nil
}

// MarkRead marks a single item of principal read.
func (s *Store) MarkRead(ctx context.Context, principal string, id int64) error {
	var readAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT read_at FROM items WHERE id = ? AND principal = ?`, id, principal).Scan(&readAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite storage: mark read: %w: id %d", ErrItemNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("sqlite storage: mark read: %w", err)
	}
	if readAt != "" {
		return fmt.Errorf("sqlite storage: mark read: %w: id %d", ErrItemAlreadyRead, id)
	}

	now := utcNow()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE items SET read_at = ?, updated_at = ? WHERE id = ? AND read_at = ''`,
		now, now, id); err != nil {
		return fmt.Errorf("sqlite storage: mark read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread item of principal read and returns how many
// changed.
func (s *Store) MarkAllRead(ctx context.Context, principal string) (int64, error) {
	if strings.TrimSpace(principal) == "" {
		return 0, fmt.Errorf("sqlite storage: mark all read: %w", ErrEmptyPrincipal)
	}
	now := utcNow()
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET read_at = ?, updated_at = ? WHERE principal = ? AND read_at = ''`,
		now, now, principal)
	if err != nil {
		return 0, fmt.Errorf("sqlite storage: mark all read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite storage: mark all read: %w", err)
	}
	return n, nil
}

// ListUnread returns the unread items of principal, newest first. A
// non-positive limit returns all of them.
func (s *Store) ListUnread(ctx context.Context, principal string, limit int) ([]Item, error) {
	query := `SELECT id, principal, message, created_at FROM items WHERE principal = ? AND read_at = '' ORDER BY id DESC`
	args := []any{principal}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item      Item
			createdAt string
		)
		if err := rows.Scan(&item.ID, &item.Principal, &item.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite storage: scan item: %w", err)
		}
		item.CreatedAt = parseTime(createdAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite storage: list items: %w", err)
	}
	return items, nil
}

func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
