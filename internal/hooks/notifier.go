package hooks

import (
	"context"
	"strconv"
	"sync"

	"github.com/cristianoliveira/badgesync/internal/logging"
)

// CountNotifier runs count-changed hooks off the caller's goroutine. Values
// published while a run is in progress collapse into the latest one, and a
// burst that ends where it started runs nothing.
type CountNotifier struct {
	runner    *Runner
	principal string

	mu       sync.Mutex
	latest   uint
	previous uint
	started  bool
	wake     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCountNotifier starts the worker. Call Close to stop it.
func NewCountNotifier(runner *Runner, principal string) *CountNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &CountNotifier{
		runner:    runner,
		principal: principal,
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go n.loop()
	return n
}

// Notify records count and schedules a hook run. It never blocks.
func (n *CountNotifier) Notify(count uint) {
	n.mu.Lock()
	if n.started && count == n.latest {
		n.mu.Unlock()
		return
	}
	n.started = true
	n.latest = count
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Close stops the worker after the current run finishes.
func (n *CountNotifier) Close() {
	n.cancel()
	<-n.done
}

func (n *CountNotifier) loop() {
	defer close(n.done)
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-n.wake:
		}

		n.mu.Lock()
		count, previous := n.latest, n.previous
		n.previous = count
		n.mu.Unlock()
		if count == previous {
			continue
		}

		env := map[string]string{
			"BADGESYNC_PRINCIPAL":      n.principal,
			"BADGESYNC_COUNT":          strconv.FormatUint(uint64(count), 10),
			"BADGESYNC_PREVIOUS_COUNT": strconv.FormatUint(uint64(previous), 10),
		}
		if err := n.runner.Run(n.ctx, PointCountChanged, env); err != nil {
			logging.Warn("count-changed hooks aborted", "error", err)
		}
	}
}
