package badge

import (
	"sync"
	"time"
)

// debouncer coalesces bursts of requests into one delayed call.
//
// The delay is measured from the first request of a burst: requests that
// arrive while a call is pending are absorbed and never push the deadline
// back. Only one timer is outstanding at a time.
type debouncer struct {
	mu     sync.Mutex
	clock  Clock
	window time.Duration
	fire   func()
	timer  Timer
	// armed identifies the current schedule; a fire whose token no longer
	// matches was superseded by Cancel followed by a new Request.
	armed uint64
	seq   uint64
}

func newDebouncer(clock Clock, window time.Duration, fire func()) *debouncer {
	return &debouncer{clock: clock, window: window, fire: fire}
}

// Request schedules the callback after the burst window unless a schedule
// is already pending. It reports whether a new schedule was armed.
func (d *debouncer) Request() bool {
	return d.RequestAfter(d.window)
}

// RequestAfter schedules the callback after delay unless a schedule is
// already pending.
func (d *debouncer) RequestAfter(delay time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.armed != 0 {
		return false
	}
	if delay < 0 {
		delay = 0
	}
	d.seq++
	token := d.seq
	d.armed = token
	d.timer = d.clock.AfterFunc(delay, func() { d.run(token) })
	return true
}

// Cancel aborts a pending schedule. It reports whether one was pending.
// A fire that is already running is not interrupted.
func (d *debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.armed == 0 {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = nil
	d.armed = 0
	return true
}

// Pending reports whether a schedule is armed.
func (d *debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed != 0
}

func (d *debouncer) run(token uint64) {
	d.mu.Lock()
	if d.armed != token {
		d.mu.Unlock()
		return
	}
	d.armed = 0
	d.timer = nil
	d.mu.Unlock()
	d.fire()
}
