package tmux

import (
	"strconv"
	"sync"

	"github.com/cristianoliveira/badgesync/internal/logging"
	"github.com/cristianoliveira/badgesync/internal/status"
)

const (
	// CountOption holds the raw unread count, e.g. #{@badgesync_unread_count}.
	CountOption = "@badgesync_unread_count"
	// BadgeOption holds the rendered badge, e.g. #{@badgesync_badge}.
	BadgeOption = "@badgesync_badge"
)

// StatusPublisher writes every published count into tmux options. Publish
// has the badge listener signature.
type StatusPublisher struct {
	client Client
	opts   status.Options

	mu   sync.Mutex
	last *uint
}

// NewStatusPublisher panics on a nil client.
func NewStatusPublisher(client Client, opts status.Options) *StatusPublisher {
	if client == nil {
		panic("NewStatusPublisher: client dependency cannot be nil")
	}
	return &StatusPublisher{client: client, opts: opts}
}

// Publish updates the tmux options and refreshes the status line. Failures
// are logged; a missing tmux server is not an error for the badge.
func (p *StatusPublisher) Publish(count uint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last != nil && *p.last == count {
		return
	}
	if running, err := p.client.HasSession(); err != nil || !running {
		logging.Debug("tmux not running, badge not published", "count", count)
		return
	}

	badge, err := status.Render(count, p.opts)
	if err != nil {
		logging.Warn("render badge failed", "error", err)
		return
	}
	if err := p.client.SetStatusOption(CountOption, strconv.FormatUint(uint64(count), 10)); err != nil {
		logging.Warn("publish badge count failed", "error", err)
		return
	}
	if err := p.client.SetStatusOption(BadgeOption, badge); err != nil {
		logging.Warn("publish badge failed", "error", err)
		return
	}
	if err := p.client.RefreshStatus(); err != nil {
		logging.Debug("refresh status failed", "error", err)
	}
	p.last = &count
}
