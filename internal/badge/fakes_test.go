package badge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock only moves when Advance is called. Timer callbacks run in the
// goroutine calling Advance, never inside AfterFunc.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in deadline order,
// including timers armed by callbacks that fall inside the window.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		live := c.timers[:0]
		for _, t := range c.timers {
			if t.fired || t.stopped {
				continue
			}
			live = append(live, t)
			if t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		c.timers = live
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if next.at.After(c.now) {
			c.now = next.at
		}
		next.fired = true
		c.mu.Unlock()
		next.f()
	}
}

// pendingFetch is one FetchCount call waiting for the test to resolve it.
type pendingFetch struct {
	principal string
	result    chan fetchResult
}

func (p *pendingFetch) resolve(n uint, err error) {
	p.result <- fetchResult{count: n, err: err}
}

// manualSource blocks every fetch until the test resolves it.
type manualSource struct {
	calls chan *pendingFetch
}

func newManualSource() *manualSource {
	return &manualSource{calls: make(chan *pendingFetch, 32)}
}

func (s *manualSource) FetchCount(ctx context.Context, principal string) (uint, error) {
	p := &pendingFetch{principal: principal, result: make(chan fetchResult, 1)}
	s.calls <- p
	select {
	case r := <-p.result:
		return r.count, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *manualSource) next(t *testing.T) *pendingFetch {
	t.Helper()
	select {
	case p := <-s.calls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("expected a fetch call")
		return nil
	}
}

func (s *manualSource) requireNoCall(t *testing.T) {
	t.Helper()
	select {
	case p := <-s.calls:
		t.Fatalf("unexpected fetch call for %q", p.principal)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeEvents hands out one channel per Subscribe call. The first refuse
// calls fail instead.
type fakeEvents struct {
	mu      sync.Mutex
	streams chan chan ChangeEvent
	cancels int
	refuse  int
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{streams: make(chan chan ChangeEvent, 8)}
}

func (f *fakeEvents) Subscribe(ctx context.Context, principal string) (<-chan ChangeEvent, CancelFunc, error) {
	f.mu.Lock()
	if f.refuse > 0 {
		f.refuse--
		f.mu.Unlock()
		return nil, nil, errors.New("connection refused")
	}
	f.mu.Unlock()

	ch := make(chan ChangeEvent, 8)
	f.streams <- ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			f.cancels++
			f.mu.Unlock()
		})
	}, nil
}

func (f *fakeEvents) next(t *testing.T) chan ChangeEvent {
	t.Helper()
	select {
	case ch := <-f.streams:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("expected a subscription")
		return nil
	}
}

type recordedFailure struct {
	principal string
	err       error
}

type fakeObserver struct {
	NopObserver
	mu       sync.Mutex
	failures []recordedFailure
	stale    int
	deferred int
	dropped  []error
}

func (o *fakeObserver) FetchFailed(principal string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, recordedFailure{principal: principal, err: err})
}

func (o *fakeObserver) StaleResultDiscarded(string, uint64, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale++
}

func (o *fakeObserver) RefreshDeferred(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deferred++
}

func (o *fakeObserver) SubscriptionDropped(_ string, err error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, err)
}

func (o *fakeObserver) staleCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stale
}

func (o *fakeObserver) failureList() []recordedFailure {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]recordedFailure(nil), o.failures...)
}

func (o *fakeObserver) droppedList() []error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]error(nil), o.dropped...)
}

// recorder collects listener deliveries.
type recorder struct {
	mu     sync.Mutex
	values []uint
}

func (r *recorder) listen(n uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, n)
}

func (r *recorder) got() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.values...)
}

type harness struct {
	engine   *Engine
	clock    *fakeClock
	source   *manualSource
	observer *fakeObserver
}

func newHarness(t *testing.T, configure ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		clock:    newFakeClock(),
		source:   newManualSource(),
		observer: &fakeObserver{},
	}
	opts := DefaultOptions()
	opts.Counts = h.source
	opts.Clock = h.clock
	opts.Observer = h.observer
	for _, fn := range configure {
		fn(&opts)
	}
	h.engine = New(opts)
	t.Cleanup(h.engine.Dispose)
	return h
}

// settle waits until no fetch is in flight.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.engine.Snapshot().State == StateIdle
	}, 2*time.Second, time.Millisecond)
}

// start initializes the engine and resolves the initial fetch with n.
func (h *harness) start(t *testing.T, principal string, n uint) {
	t.Helper()
	require.NoError(t, h.engine.Initialize(principal))
	h.source.next(t).resolve(n, nil)
	h.settle(t)
	require.Equal(t, n, h.engine.CurrentCount())
}

// awaitResubscribedRefresh steps the clock through the resubscribe backoff
// until the pump subscribes again and the gap refresh reaches the source.
func (h *harness) awaitResubscribedRefresh(t *testing.T, events *fakeEvents) *pendingFetch {
	t.Helper()
	var resubscribed bool
	var call *pendingFetch
	require.Eventually(t, func() bool {
		h.clock.Advance(100 * time.Millisecond)
		if !resubscribed {
			select {
			case <-events.streams:
				resubscribed = true
			default:
			}
			return false
		}
		select {
		case call = <-h.source.calls:
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	return call
}
