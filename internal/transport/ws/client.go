// Package ws receives change events pushed over a WebSocket connection.
// Each text frame carries one JSON change event.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cristianoliveira/badgesync/internal/badge"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// ErrInvalidURL indicates the endpoint is not a ws:// or wss:// URL.
var ErrInvalidURL = errors.New("websocket url must use ws or wss scheme")

// Client subscribes to a push endpoint. It does not reconnect on its own;
// a dropped connection ends the stream and the caller resubscribes.
type Client struct {
	endpoint     *url.URL
	dialer       *websocket.Dialer
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewClient validates the endpoint URL.
func NewClient(rawURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("websocket transport: parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("websocket transport: %q: %w", rawURL, ErrInvalidURL)
	}
	return &Client{
		endpoint:     u,
		dialer:       websocket.DefaultDialer,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
	}, nil
}

// URL returns the endpoint with the principal query parameter applied.
func (c *Client) URL(principal string) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("principal", principal)
	u.RawQuery = q.Encode()
	return u.String()
}

// Subscribe dials the endpoint for principal and streams decoded events until
// the connection drops or cancel is called.
func (c *Client) Subscribe(ctx context.Context, principal string) (<-chan badge.ChangeEvent, badge.CancelFunc, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.URL(principal), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("websocket transport: dial: %w", err)
	}

	out := make(chan badge.ChangeEvent, 10)
	subCtx, cancelCtx := context.WithCancel(ctx)
	var writeMu sync.Mutex
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelCtx()
			writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			writeMu.Unlock()
			_ = conn.Close()
		})
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(c.pongTimeout))

	go c.pingLoop(subCtx, conn, &writeMu)
	go func() {
		defer close(out)
		defer cancel()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			ev, _ := badge.DecodeEvent(data, principal)
			if ev.Principal != principal {
				continue
			}
			select {
			case out <- ev:
			case <-subCtx.Done():
				return
			}
		}
	}()

	return out, cancel, nil
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
