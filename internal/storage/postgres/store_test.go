package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristianoliveira/badgesync/internal/badge"
)

var (
	_ badge.CountSource = (*Store)(nil)
	_ badge.EventSource = (*Store)(nil)
)

func TestNewStoreValidation(t *testing.T) {
	_, err := NewStore("  ", "")
	require.ErrorIs(t, err, ErrEmptyDSN)

	s, err := NewStore("postgres://localhost/db", "")
	require.NoError(t, err)
	assert.Equal(t, defaultChannel, s.Channel())

	s, err = NewStore("postgres://localhost/db", " custom ")
	require.NoError(t, err)
	assert.Equal(t, "custom", s.Channel())
}

func TestOpenFailureIsReported(t *testing.T) {
	s, err := NewStore("postgres://localhost/db", "")
	require.NoError(t, err)
	boom := errors.New("boom")
	var opens int
	s.openDB = func(string, string) (*sql.DB, error) {
		opens++
		return nil, boom
	}

	_, err = s.FetchCount(context.Background(), "alice")
	require.ErrorIs(t, err, boom)
	_, err = s.Add(context.Background(), "alice", "msg")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, opens)
	assert.NoError(t, s.Close())
}

func TestInputValidationHappensBeforeConnecting(t *testing.T) {
	s, err := NewStore("postgres://localhost/db", "")
	require.NoError(t, err)
	s.openDB = func(string, string) (*sql.DB, error) {
		t.Fatal("should not connect")
		return nil, nil
	}

	_, err = s.Add(context.Background(), "", "msg")
	assert.ErrorIs(t, err, ErrEmptyPrincipal)
	_, err = s.Add(context.Background(), "alice", "")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = s.MarkAllRead(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyPrincipal)
	assert.ErrorIs(t, s.MarkRead(context.Background(), "", "id"), ErrEmptyPrincipal)
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"items"`, quoteIdentifier(" items "))
	assert.Equal(t, `"a""b"`, quoteIdentifier(`a"b`))
	assert.Equal(t, `""`, quoteIdentifier(""))
}

var integrationCounter uint64

func integrationStore(t *testing.T) *Store {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("BADGESYNC_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("BADGESYNC_TEST_POSTGRES_DSN not set")
	}
	n := atomic.AddUint64(&integrationCounter, 1)
	suffix := fmt.Sprintf("%d_%d", time.Now().UnixNano(), n)
	s, err := NewStore(dsn, "badgesync_it_"+suffix)
	require.NoError(t, err)
	s.tableName = "badgesync_items_it_" + suffix
	t.Cleanup(func() {
		if s.db != nil {
			_, _ = s.db.Exec("DROP TABLE IF EXISTS " + quoteIdentifier(s.tableName))
		}
		_ = s.Close()
	})
	return s
}

func TestIntegrationCountAndMarkAllRead(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Add(ctx, "alice", "msg")
		require.NoError(t, err)
	}
	_, err := s.Add(ctx, "bob", "msg")
	require.NoError(t, err)

	n, err := s.FetchCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(3), n)

	changed, err := s.MarkAllRead(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), changed)

	n, err = s.FetchCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(0), n)
}

func TestIntegrationListUnreadAndMarkRead(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()

	first, err := s.Add(ctx, "alice", "first")
	require.NoError(t, err)
	_, err = s.Add(ctx, "alice", "second")
	require.NoError(t, err)

	require.ErrorIs(t, s.MarkRead(ctx, "bob", first), ErrItemNotFound)
	require.NoError(t, s.MarkRead(ctx, "alice", first))
	require.ErrorIs(t, s.MarkRead(ctx, "alice", first), ErrItemNotFound)

	items, err := s.ListUnread(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "second", items[0].Message)
	assert.Equal(t, "alice", items[0].Principal)

	n, err := s.FetchCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(1), n)
}

func TestIntegrationSubscribeFiltersByPrincipal(t *testing.T) {
	s := integrationStore(t)
	ctx := context.Background()

	events, cancel, err := s.Subscribe(ctx, "alice")
	require.NoError(t, err)
	defer cancel()

	_, err = s.Add(ctx, "bob", "msg")
	require.NoError(t, err)
	_, err = s.Add(ctx, "alice", "msg")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, badge.Inserted, ev.Kind)
		assert.Equal(t, "alice", ev.Principal)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a notification")
	}
}
