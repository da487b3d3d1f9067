package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cristianoliveira/badgesync/internal/badge"
	"github.com/cristianoliveira/badgesync/internal/status"
	"github.com/cristianoliveira/badgesync/internal/storage"
	"github.com/cristianoliveira/badgesync/internal/tmux"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimRight(b.buf.String(), "\n"), "\n")
}

func (b *lockedBuffer) last() string {
	lines := b.lines()
	return lines[len(lines)-1]
}

type fakeWatchClient struct {
	count  atomic.Uint32
	marked atomic.Int32
}

func (f *fakeWatchClient) Sources(string) (badge.CountSource, badge.EventSource, error) {
	return badge.CountSourceFunc(func(context.Context, string) (uint, error) {
		return uint(f.count.Load()), nil
	}), nil, nil
}

func (f *fakeWatchClient) MarkAllRead(context.Context, string) (int64, error) {
	f.marked.Add(1)
	f.count.Store(0)
	return 1, nil
}

func startWatch(t *testing.T, client watchClient, opts WatchOptions) (chan os.Signal, <-chan error) {
	t.Helper()
	signals := make(chan os.Signal, 4)
	opts.Signals = signals
	done := make(chan error, 1)
	go func() { done <- Watch(context.Background(), client, opts) }()
	t.Cleanup(func() {
		select {
		case signals <- syscall.SIGTERM:
		default:
		}
	})
	return signals, done
}

func TestWatchPrintsRefreshesAndClears(t *testing.T) {
	client := &fakeWatchClient{}
	client.count.Store(3)
	out := &lockedBuffer{}

	signals, done := startWatch(t, client, WatchOptions{
		Principal: "alice",
		Status:    status.Options{Format: status.FormatCountOnly, ShowZero: true},
		Output:    out,
	})

	require.Eventually(t, func() bool { return out.last() == "3" }, 3*time.Second, 10*time.Millisecond)

	client.count.Store(5)
	signals <- syscall.SIGUSR2
	require.Eventually(t, func() bool { return out.last() == "5" }, 3*time.Second, 10*time.Millisecond)

	signals <- syscall.SIGUSR1
	require.Eventually(t, func() bool {
		return out.last() == "0" && client.marked.Load() == 1
	}, 3*time.Second, 10*time.Millisecond)

	signals <- syscall.SIGTERM
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchPublishesToTmux(t *testing.T) {
	client := &fakeWatchClient{}
	client.count.Store(2)

	tmuxClient := new(tmux.MockClient)
	published := make(chan string, 4)
	tmuxClient.On("HasSession").Return(true, nil)
	tmuxClient.On("SetStatusOption", tmux.CountOption, mock.Anything).
		Run(func(args mock.Arguments) { published <- args.String(1) }).
		Return(nil)
	tmuxClient.On("SetStatusOption", tmux.BadgeOption, mock.Anything).Return(nil)
	tmuxClient.On("RefreshStatus").Return(nil)

	_, done := startWatch(t, client, WatchOptions{
		Principal:  "alice",
		Status:     status.Options{Format: status.FormatCompact},
		Tmux:       true,
		TmuxClient: tmuxClient,
		Output:     &lockedBuffer{},
	})

	select {
	case v := <-published:
		assert.Equal(t, "2", v)
	case err := <-done:
		t.Fatalf("watch stopped early: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("expected the badge to be published to tmux")
	}
}

func TestWatchRequiresCountSource(t *testing.T) {
	client := &nilSourceClient{}
	err := Watch(context.Background(), client, WatchOptions{Principal: "alice", Output: &lockedBuffer{}})
	require.ErrorIs(t, err, badge.ErrMissingCountSource)
}

type nilSourceClient struct{}

func (nilSourceClient) Sources(string) (badge.CountSource, badge.EventSource, error) {
	return nil, nil, nil
}

func (nilSourceClient) MarkAllRead(context.Context, string) (int64, error) { return 0, nil }

func TestWatchStopsOnContextCancel(t *testing.T) {
	client := &fakeWatchClient{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, client, WatchOptions{
			Principal: "alice",
			Output:    &lockedBuffer{},
			Signals:   make(chan os.Signal),
		})
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestBackendClientAgainstSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "badgesync.db")
	client := &backendClient{open: func() (*storage.Backend, error) {
		return storage.Open(storage.Settings{CountBackend: storage.BackendSQLite, SQLitePath: dbPath, EventBackend: storage.EventsNone})
	}}
	defer client.Close()
	ctx := context.Background()

	id, err := client.AddItem(ctx, "alice", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	n, err := client.FetchCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint(1), n)

	counts, events, err := client.Sources("")
	require.NoError(t, err)
	assert.NotNil(t, counts)
	assert.Nil(t, events)

	_, events, err = client.Sources("sqlite")
	require.NoError(t, err)
	assert.NotNil(t, events)

	items, err := client.ListUnread(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, "hello", items[0].Message)

	second, err := client.AddItem(ctx, "alice", "again")
	require.NoError(t, err)
	require.NoError(t, client.MarkRead(ctx, "alice", second))

	changed, err := client.MarkAllRead(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}
