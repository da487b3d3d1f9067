// Package redis keeps unread items in Redis sets and announces changes over
// Pub/Sub. Keys and channels are namespaced with a configurable prefix.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/cristianoliveira/badgesync/internal/badge"
)

var (
	// ErrEmptyPrefix indicates the store was built without a key prefix.
	ErrEmptyPrefix = errors.New("key prefix cannot be empty")
	// ErrEmptyPrincipal indicates a principal argument was blank.
	ErrEmptyPrincipal = errors.New("principal cannot be empty")
	// ErrEmptyMessage indicates an item was added without a message.
	ErrEmptyMessage = errors.New("message cannot be empty")
	// ErrItemNotFound indicates the ID is not in the principal's unread set.
	ErrItemNotFound = errors.New("unread item not found")
)

// Item is one unread item read back from its hash.
type Item struct {
	ID        string
	Principal string
	Message   string
	CreatedAt time.Time
}

// UnreadKey is the set of unread item IDs of a principal.
func UnreadKey(prefix, principal string) string {
	return fmt.Sprintf("%s:unread:%s", prefix, principal)
}

// ItemKey is the hash holding one item.
func ItemKey(prefix, id string) string {
	return fmt.Sprintf("%s:item:%s", prefix, id)
}

// EventsChannel is the Pub/Sub channel carrying a principal's change events.
func EventsChannel(prefix, principal string) string {
	return fmt.Sprintf("%s:events:%s", prefix, principal)
}

// Store is safe for concurrent use. It satisfies badge.CountSource and
// badge.EventSource.
type Store struct {
	rdb    *goredis.Client
	prefix string
}

// NewStore connects lazily; use Ping to verify connectivity.
func NewStore(opts *goredis.Options, prefix string) (*Store, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, fmt.Errorf("redis storage: %w", ErrEmptyPrefix)
	}
	return &Store{rdb: goredis.NewClient(opts), prefix: prefix}, nil
}

// Close closes the Redis connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis storage: ping: %w", err)
	}
	return nil
}

// Add stores an unread item and publishes an inserted event.
func (s *Store) Add(ctx context.Context, principal, message string) (string, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return "", fmt.Errorf("redis storage: add item: %w", ErrEmptyPrincipal)
	}
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("redis storage: add item: %w", ErrEmptyMessage)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, ItemKey(s.prefix, id),
			"principal", principal,
			"message", message,
			"created_at", now.Format(time.RFC3339Nano))
		pipe.SAdd(ctx, UnreadKey(s.prefix, principal), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redis storage: add item: %w", err)
	}

	if err := s.publish(ctx, badge.ChangeEvent{Kind: badge.Inserted, Principal: principal, At: now}); err != nil {
		return id, err
	}
	return id, nil
}

// FetchCount returns the cardinality of the principal's unread set.
func (s *Store) FetchCount(ctx context.Context, principal string) (uint, error) {
	n, err := s.rdb.SCard(ctx, UnreadKey(s.prefix, principal)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis storage: count unread: %w", err)
	}
	return uint(n), nil
}

// MarkAllRead empties the principal's unread set and publishes an updated
// event when anything changed.
func (s *Store) MarkAllRead(ctx context.Context, principal string) (int64, error) {
	if strings.TrimSpace(principal) == "" {
		return 0, fmt.Errorf("redis storage: mark all read: %w", ErrEmptyPrincipal)
	}

	key := UnreadKey(s.prefix, principal)
	var card *goredis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		card = pipe.SCard(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis storage: mark all read: %w", err)
	}

	changed := card.Val()
	if changed > 0 {
		if err := s.publish(ctx, badge.ChangeEvent{Kind: badge.Updated, Principal: principal, At: time.Now().UTC()}); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// MarkRead removes one item from the principal's unread set and publishes
// an updated event.
func (s *Store) MarkRead(ctx context.Context, principal, id string) error {
	if strings.TrimSpace(principal) == "" {
		return fmt.Errorf("redis storage: mark read: %w", ErrEmptyPrincipal)
	}
	removed, err := s.rdb.SRem(ctx, UnreadKey(s.prefix, principal), id).Result()
	if err != nil {
		return fmt.Errorf("redis storage: mark read: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("redis storage: mark read: %w: id %s", ErrItemNotFound, id)
	}
	return s.publish(ctx, badge.ChangeEvent{Kind: badge.Updated, Principal: principal, At: time.Now().UTC()})
}

// ListUnread returns the principal's unread items, newest first. A
// non-positive limit returns all of them. IDs whose hash is gone are skipped.
func (s *Store) ListUnread(ctx context.Context, principal string, limit int) ([]Item, error) {
	ids, err := s.rdb.SMembers(ctx, UnreadKey(s.prefix, principal)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis storage: list unread: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, ItemKey(s.prefix, id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis storage: list unread: %w", err)
	}

	items := make([]Item, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
		items = append(items, Item{
			ID:        ids[i],
			Principal: fields["principal"],
			Message:   fields["message"],
			CreatedAt: createdAt,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) publish(ctx context.Context, ev badge.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis storage: encode event: %w", err)
	}
	if err := s.rdb.Publish(ctx, EventsChannel(s.prefix, ev.Principal), payload).Err(); err != nil {
		return fmt.Errorf("redis storage: publish event: %w", err)
	}
	return nil
}

// Subscribe listens on the principal's events channel. Redis Pub/Sub is
// at-most-once, so the engine's refresh after each resubscribe covers gaps.
func (s *Store) Subscribe(ctx context.Context, principal string) (<-chan badge.ChangeEvent, badge.CancelFunc, error) {
	pubsub := s.rdb.Subscribe(ctx, EventsChannel(s.prefix, principal))
	// Wait for the subscription confirmation so connection errors surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("redis storage: subscribe: %w", err)
	}

	out := make(chan badge.ChangeEvent, 10)
	subCtx, cancelCtx := context.WithCancel(ctx)
	var once sync.Once
	cancel := func() { once.Do(cancelCtx) }

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev, _ := badge.DecodeEvent([]byte(msg.Payload), principal)
				select {
				case out <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}
