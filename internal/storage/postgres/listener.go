package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/cristianoliveira/badgesync/internal/badge"
)

// Subscribe opens a dedicated LISTEN connection on the store's channel and
// forwards notifications addressed to principal. The listener reconnects on
// its own; each reconnect is reported as an updated event because
// notifications sent while disconnected are lost.
func (s *Store) Subscribe(ctx context.Context, principal string) (<-chan badge.ChangeEvent, badge.CancelFunc, error) {
	listener := pq.NewListener(s.dsn, listenerMinBackoff, listenerMaxBackoff, nil)
	if err := listener.Listen(s.channel); err != nil {
		_ = listener.Close()
		return nil, nil, fmt.Errorf("postgres storage: listen %s: %w", s.channel, err)
	}

	out := make(chan badge.ChangeEvent, 10)
	subCtx, cancelCtx := context.WithCancel(ctx)
	var once sync.Once
	cancel := func() { once.Do(cancelCtx) }

	go func() {
		defer close(out)
		defer listener.Close()

		ping := time.NewTicker(listenerPingEvery)
		defer ping.Stop()

		for {
			var ev badge.ChangeEvent
			select {
			case <-subCtx.Done():
				return
			case <-ping.C:
				_ = listener.Ping()
				continue
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				if n == nil {
					ev = badge.ChangeEvent{Kind: badge.Updated, Principal: principal, At: time.Now()}
					break
				}
				decoded, _ := badge.DecodeEvent([]byte(n.Extra), principal)
				if decoded.Principal != principal {
					continue
				}
				ev = decoded
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
