package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cristianoliveira/badgesync/internal/badge"
)

var _ badge.EventSource = (*Client)(nil)

// pushServer upgrades each request and hands the connection to the test.
type pushServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	query chan string
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{
		conns: make(chan *websocket.Conn, 4),
		query: make(chan string, 4),
	}
	upgrader := websocket.Upgrader{}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.query <- r.URL.Query().Get("principal")
		ps.conns <- conn
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http") + "/events"
}

func (ps *pushServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ps.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("expected a connection")
		return nil
	}
}

func receive(t *testing.T, events <-chan badge.ChangeEvent) badge.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("expected an event")
		return badge.ChangeEvent{}
	}
}

func TestNewClientValidatesScheme(t *testing.T) {
	_, err := NewClient("http://example.com/events")
	require.ErrorIs(t, err, ErrInvalidURL)

	c, err := NewClient("wss://example.com/events?token=x")
	require.NoError(t, err)
	assert.Contains(t, c.URL("alice"), "principal=alice")
	assert.Contains(t, c.URL("alice"), "token=x")
}

func TestSubscribeStreamsEvents(t *testing.T) {
	ps := newPushServer(t)
	c, err := NewClient(ps.wsURL())
	require.NoError(t, err)

	events, cancel, err := c.Subscribe(context.Background(), "alice")
	require.NoError(t, err)
	defer cancel()

	conn := ps.accept(t)
	assert.Equal(t, "alice", <-ps.query)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"inserted","principal":"alice"}`)))
	ev := receive(t, events)
	assert.Equal(t, badge.Inserted, ev.Kind)
	assert.Equal(t, "alice", ev.Principal)

	// Frames for other principals are dropped; malformed frames mean recheck.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"inserted","principal":"bob"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`???`)))
	ev = receive(t, events)
	assert.Equal(t, badge.Updated, ev.Kind)
	assert.Equal(t, "alice", ev.Principal)
}

func TestServerCloseEndsStream(t *testing.T) {
	ps := newPushServer(t)
	c, err := NewClient(ps.wsURL())
	require.NoError(t, err)

	events, cancel, err := c.Subscribe(context.Background(), "alice")
	require.NoError(t, err)
	defer cancel()

	conn := ps.accept(t)
	require.NoError(t, conn.Close())

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("expected the stream to close")
	}
}

func TestCancelClosesConnection(t *testing.T) {
	ps := newPushServer(t)
	c, err := NewClient(ps.wsURL())
	require.NoError(t, err)

	events, cancel, err := c.Subscribe(context.Background(), "alice")
	require.NoError(t, err)
	conn := ps.accept(t)

	cancel()
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestSubscribeDialFailure(t *testing.T) {
	ps := newPushServer(t)
	url := ps.wsURL()
	ps.srv.Close()

	c, err := NewClient(url)
	require.NoError(t, err)
	_, _, err = c.Subscribe(context.Background(), "alice")
	require.Error(t, err)
}
