package badge

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ChangeKind classifies a change event.
type ChangeKind int

const (
	// Inserted announces a new record.
	Inserted ChangeKind = iota + 1
	// Updated announces a modified record.
	Updated
)

// String returns the lowercase kind name.
func (k ChangeKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseChangeKind parses the lowercase kind name. Unknown names map to Updated
// since every event only means "recheck".
func ParseChangeKind(s string) ChangeKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inserted", "insert":
		return Inserted
	default:
		return Updated
	}
}

// ChangeEvent announces that something may have changed for a principal.
// It carries no delta; consumers always recheck the count source.
type ChangeEvent struct {
	Kind      ChangeKind
	Principal string
	At        time.Time
}

// CountSource performs the authoritative unread count query.
type CountSource interface {
	FetchCount(ctx context.Context, principal string) (uint, error)
}

// CancelFunc ends a subscription. It must be idempotent and safe to call
// after the stream was exhausted.
type CancelFunc func()

// EventSource emits change events scoped to one principal.
// The returned channel is closed when the subscription ends.
type EventSource interface {
	Subscribe(ctx context.Context, principal string) (<-chan ChangeEvent, CancelFunc, error)
}

// CountSourceFunc adapts a function to CountSource.
type CountSourceFunc func(ctx context.Context, principal string) (uint, error)

// FetchCount calls f.
func (f CountSourceFunc) FetchCount(ctx context.Context, principal string) (uint, error) {
	return f(ctx, principal)
}
