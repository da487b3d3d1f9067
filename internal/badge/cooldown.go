package badge

import (
	"sync"
	"time"
)

// cooldownGuard tracks whether an optimistic clear happened recently.
// It is time based and never calls back; the engine polls it.
type cooldownGuard struct {
	mu    sync.Mutex
	clock Clock
	until time.Time
}

func newCooldownGuard(clock Clock) *cooldownGuard {
	return &cooldownGuard{clock: clock}
}

// Arm starts or restarts the window [now, now+d).
func (g *cooldownGuard) Arm(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.until = g.clock.Now().Add(d)
}

// Active reports whether the window is still open.
func (g *cooldownGuard) Active() bool {
	return g.Remaining() > 0
}

// Remaining returns the time left in the window, or zero when inactive.
func (g *cooldownGuard) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.until.IsZero() {
		return 0
	}
	left := g.until.Sub(g.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Reset closes the window immediately.
func (g *cooldownGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.until = time.Time{}
}
