// Package badge keeps an unread-activity count consistent across push
// events, optimistic local clears, ad hoc refresh requests and an expensive
// authoritative count query.
//
// All mutable state lives in Engine behind a single mutex. Every authoritative
// operation (fetch start, Clear, SetCount, teardown) bumps a monotonic
// generation number; a fetch result is applied only when the generation it
// was stamped with is still current, so a stale in-flight result can never
// overwrite a newer optimistic value.
package badge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cristianoliveira/badgesync/internal/logging"
)

// State is the reconciliation state of an Engine.
type State int

const (
	StateUninitialized State = iota
	StateIdle
	StateRefreshing
	StateDisposed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is a point-in-time view of the engine.
type Snapshot struct {
	Principal      string
	State          State
	Count          uint
	Known          bool
	Generation     uint64
	CooldownActive bool
	RefreshPending bool
}

// Engine is the reconciliation core. Create one with New per composition
// root; it is safe for concurrent use.
type Engine struct {
	opts     Options
	log      logging.Logger
	clock    Clock
	cooldown *cooldownGuard
	sched    *debouncer
	fan      *fanout
	retry    *backoff.ExponentialBackOff

	mu        sync.Mutex
	closed    bool
	state     State
	principal string
	session   uint64
	count     uint
	known     bool

	generation uint64
	// inFlight is the generation of the outstanding fetch, zero when idle.
	inFlight uint64
	// dirty records refresh requests that arrived while a fetch was in flight.
	dirty bool
	// pendingCooldown records refresh requests deferred by the cooldown guard.
	pendingCooldown bool
	expiryTimer     Timer
	expiryToken     uint64
	lastFetchStart  time.Time
	failures        int

	sessionCtx  context.Context
	stopSession context.CancelFunc
}

// New builds an engine. Zero-valued tunables fall back to their defaults.
// The count source is validated by Initialize so that misconfiguration
// surfaces where the session starts.
func New(opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		opts:     opts,
		log:      opts.Logger.With("component", "badge"),
		clock:    opts.Clock,
		cooldown: newCooldownGuard(opts.Clock),
	}
	e.fan = newFanout(e.log)
	e.sched = newDebouncer(opts.Clock, opts.DebounceWindow, e.onScheduled)

	e.retry = backoff.NewExponentialBackOff()
	e.retry.InitialInterval = opts.DebounceWindow
	e.retry.MaxInterval = opts.ResubscribeMax
	e.retry.MaxElapsedTime = 0
	e.retry.Reset()
	return e
}

// Initialize starts a session for principal. Calling it again with the same
// principal is a no-op; a different principal tears the current session
// down first.
func (e *Engine) Initialize(principal string) error {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return ErrEmptyPrincipal
	}
	if e.opts.Counts == nil {
		return ErrMissingCountSource
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrDisposed
	}
	if e.activeLocked() && e.principal == principal {
		e.mu.Unlock()
		return nil
	}
	if e.activeLocked() {
		e.log.Info("badge: principal changed", "from", e.principal, "to", principal)
		e.teardownLocked()
	}

	e.session++
	e.principal = principal
	e.state = StateIdle
	e.count = 0
	e.known = false
	e.failures = 0
	e.retry.Reset()
	e.lastFetchStart = time.Time{}
	e.cooldown.Reset()
	e.sessionCtx, e.stopSession = context.WithCancel(context.Background())
	if e.opts.Events != nil {
		go e.pump(e.sessionCtx, e.session, principal)
	}
	e.log.Info("badge: session started", "principal", principal, "session", e.session)
	e.startFetchLocked()
	e.mu.Unlock()

	e.fan.drain()
	return nil
}

// Logout ends the current session without disposing the engine.
func (e *Engine) Logout() {
	e.mu.Lock()
	if e.closed || !e.activeLocked() {
		e.mu.Unlock()
		return
	}
	e.teardownLocked()
	e.mu.Unlock()
	e.fan.drain()
}

// Dispose releases the session, timers and listeners. Every later call on
// the engine is a no-op; Initialize returns ErrDisposed.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.activeLocked() {
		e.teardownLocked()
	}
	e.closed = true
	e.state = StateDisposed
	e.mu.Unlock()

	e.fan.drain()
	e.fan.reset()
}

// RequestRefresh asks for the count to be rechecked. It is safe to call at
// any frequency; bursts collapse into one fetch.
func (e *Engine) RequestRefresh() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requestLocked()
}

// Clear optimistically zeroes the count and opens the cooldown window.
// Any fetch already in flight is invalidated.
func (e *Engine) Clear() {
	e.mu.Lock()
	if !e.usableLocked("clear") {
		e.mu.Unlock()
		return
	}
	e.generation++
	e.cooldown.Arm(e.opts.CooldownWindow)
	if e.sched.Cancel() {
		e.pendingCooldown = true
	}
	if e.pendingCooldown {
		e.armExpiryLocked()
	}
	e.log.Debug("badge: optimistic clear", "principal", e.principal, "generation", e.generation)
	e.setCountLocked(0)
	e.mu.Unlock()

	e.fan.drain()
}

// SetCount overrides the count with a value known from another channel.
// Any fetch already in flight is invalidated.
func (e *Engine) SetCount(n uint) {
	e.mu.Lock()
	if !e.usableLocked("set count") {
		e.mu.Unlock()
		return
	}
	e.generation++
	e.log.Debug("badge: count set", "principal", e.principal, "count", n, "generation", e.generation)
	e.setCountLocked(n)
	e.mu.Unlock()

	e.fan.drain()
}

// CurrentCount returns the cached count; zero while unknown.
func (e *Engine) CurrentCount() uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Snapshot returns the current engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Principal:      e.principal,
		State:          e.state,
		Count:          e.count,
		Known:          e.known,
		Generation:     e.generation,
		CooldownActive: e.activeLocked() && e.cooldown.Active(),
		RefreshPending: e.pendingCooldown || e.dirty || e.sched.Pending(),
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (e *Engine) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return func() {}
	}
	return e.fan.subscribe(l)
}

func (e *Engine) activeLocked() bool {
	return e.state == StateIdle || e.state == StateRefreshing
}

// usableLocked reports whether a session is live, logging stale calls.
func (e *Engine) usableLocked(op string) bool {
	if !e.closed && e.activeLocked() {
		return true
	}
	e.log.Debug("badge: operation ignored", "op", op, "state", e.state.String(), "reason", ErrStalePrincipal.Error())
	return false
}

func (e *Engine) setCountLocked(n uint) {
	prev := e.count
	e.count = n
	e.known = true
	if prev != n {
		e.fan.enqueue(n)
	}
}

func (e *Engine) requestLocked() {
	if !e.usableLocked("refresh") {
		return
	}
	if e.inFlight != 0 {
		e.dirty = true
		return
	}
	e.scheduleLocked(e.opts.DebounceWindow)
}

// scheduleLocked arms the debouncer, or defers to the end of the cooldown
// window when one is open.
func (e *Engine) scheduleLocked(delay time.Duration) {
	if e.cooldown.Active() {
		e.sched.Cancel()
		e.deferLocked()
		return
	}
	e.sched.RequestAfter(delay)
}

func (e *Engine) deferLocked() {
	if !e.pendingCooldown {
		e.log.Debug("badge: refresh deferred by cooldown", "principal", e.principal, "remaining", e.cooldown.Remaining())
		e.opts.Observer.RefreshDeferred(e.principal)
	}
	e.pendingCooldown = true
	e.armExpiryLocked()
}

// armExpiryLocked makes sure one timer fires just after the cooldown window.
func (e *Engine) armExpiryLocked() {
	if e.expiryTimer != nil {
		return
	}
	e.expiryToken++
	token := e.expiryToken
	e.expiryTimer = e.clock.AfterFunc(e.cooldown.Remaining()+e.opts.CooldownGrace, func() {
		e.onCooldownExpired(token)
	})
}

func (e *Engine) onCooldownExpired(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if token != e.expiryToken {
		return
	}
	e.expiryTimer = nil
	if e.closed || !e.activeLocked() || !e.pendingCooldown {
		return
	}
	if e.cooldown.Active() {
		// A later Clear restarted the window.
		e.armExpiryLocked()
		return
	}
	e.pendingCooldown = false
	e.log.Debug("badge: cooldown expired, replaying deferred refresh", "principal", e.principal)
	e.sched.Request()
}

// onScheduled runs when the debouncer fires.
func (e *Engine) onScheduled() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.activeLocked() {
		return
	}
	if e.cooldown.Active() {
		e.deferLocked()
		return
	}
	if e.inFlight != 0 {
		e.dirty = true
		return
	}
	if !e.lastFetchStart.IsZero() && e.opts.MinFetchSpacing > 0 {
		if wait := e.lastFetchStart.Add(e.opts.MinFetchSpacing).Sub(e.clock.Now()); wait > 0 {
			e.sched.RequestAfter(wait)
			return
		}
	}
	e.startFetchLocked()
}

func (e *Engine) startFetchLocked() {
	e.generation++
	gen := e.generation
	e.inFlight = gen
	e.dirty = false
	e.state = StateRefreshing
	e.lastFetchStart = e.clock.Now()
	e.opts.Observer.FetchStarted(e.principal, gen)
	e.log.Debug("badge: fetch started", "principal", e.principal, "generation", gen)

	// The deadline runs on the engine clock and is armed before the fetch
	// goroutine starts.
	ctx, cancel := context.WithCancelCause(e.sessionCtx)
	deadline := e.clock.AfterFunc(e.opts.FetchTimeout, func() {
		cancel(context.DeadlineExceeded)
	})
	go e.fetch(ctx, gen, e.principal, func() {
		deadline.Stop()
		cancel(context.Canceled)
	})
}

type fetchResult struct {
	count uint
	err   error
}

func (e *Engine) fetch(ctx context.Context, gen uint64, principal string, release func()) {
	defer release()
	start := e.clock.Now()

	done := make(chan fetchResult, 1)
	go func() {
		n, err := e.opts.Counts.FetchCount(ctx, principal)
		done <- fetchResult{count: n, err: err}
	}()

	var res fetchResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = context.Cause(ctx)
	}
	if res.err != nil && ctx.Err() != nil && !errors.Is(res.err, context.Cause(ctx)) {
		res.err = fmt.Errorf("%w: %w", context.Cause(ctx), res.err)
	}
	if res.err != nil {
		res.err = fmt.Errorf("%w: %w", ErrSourceUnavailable, res.err)
	}
	e.completeFetch(gen, res, e.clock.Now().Sub(start))
}

func (e *Engine) completeFetch(gen uint64, res fetchResult, elapsed time.Duration) {
	e.mu.Lock()
	if e.inFlight != gen {
		// The session this fetch belonged to is gone.
		e.mu.Unlock()
		return
	}
	e.inFlight = 0
	e.state = StateIdle
	principal := e.principal

	if res.err != nil {
		e.failures++
		e.opts.Observer.FetchFailed(principal, res.err, elapsed)
		e.log.Warn("badge: fetch failed", "principal", principal, "generation", gen, "attempt", e.failures, "error", res.err.Error())
		if e.failures <= e.opts.FetchRetryMax {
			if delay := e.retry.NextBackOff(); delay != backoff.Stop {
				e.dirty = false
				e.scheduleLocked(delay)
			}
		} else if e.dirty {
			e.dirty = false
			e.scheduleLocked(e.opts.DebounceWindow)
		}
		e.mu.Unlock()
		return
	}

	e.failures = 0
	e.retry.Reset()
	e.opts.Observer.FetchSucceeded(principal, res.count, elapsed)
	if gen != e.generation {
		e.opts.Observer.StaleResultDiscarded(principal, gen, e.generation)
		e.log.Debug("badge: stale fetch result discarded", "principal", principal, "fetch_generation", gen, "generation", e.generation, "count", res.count)
	} else {
		e.log.Debug("badge: fetch applied", "principal", principal, "generation", gen, "count", res.count)
		e.setCountLocked(res.count)
	}
	if e.dirty {
		e.dirty = false
		e.scheduleLocked(e.opts.DebounceWindow)
	}
	e.mu.Unlock()

	e.fan.drain()
}

// teardownLocked ends the current session and discards the cached count.
func (e *Engine) teardownLocked() {
	if e.stopSession != nil {
		e.stopSession()
		e.stopSession = nil
	}
	e.sched.Cancel()
	if e.expiryTimer != nil {
		e.expiryTimer.Stop()
		e.expiryTimer = nil
	}
	e.expiryToken++
	e.generation++
	e.inFlight = 0
	e.dirty = false
	e.pendingCooldown = false
	e.cooldown.Reset()

	e.log.Info("badge: session ended", "principal", e.principal, "session", e.session)
	prev := e.count
	e.count = 0
	e.known = false
	e.principal = ""
	e.state = StateDisposed
	if prev != 0 {
		e.fan.enqueue(0)
	}
}

// pump relays events for one session, resubscribing with exponential
// backoff whenever the stream ends while the session is still live.
func (e *Engine) pump(ctx context.Context, session uint64, principal string) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.opts.ResubscribeInitial
	bo.MaxInterval = e.opts.ResubscribeMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	// gap is set once any attempt has failed or any stream has ended; the
	// next successful subscription then asks for a refresh because events
	// may have been missed while disconnected.
	gap := false
	for {
		stream, cancel, err := e.opts.Events.Subscribe(ctx, principal)
		if err == nil {
			if gap {
				e.requestForSession(session)
			}
			gap = false
			bo.Reset()
			err = e.consume(ctx, session, stream)
			cancel()
		}
		if ctx.Err() != nil {
			return
		}
		gap = true

		wait := bo.NextBackOff()
		dropped := fmt.Errorf("%w: %w", ErrSubscriptionDropped, err)
		e.log.Warn("badge: event subscription dropped", "principal", principal, "retry_in", wait.String(), "error", dropped.Error())
		e.opts.Observer.SubscriptionDropped(principal, dropped, wait)
		if !e.sleep(ctx, wait) {
			return
		}
	}
}

func (e *Engine) consume(ctx context.Context, session uint64, stream <-chan ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream:
			if !ok {
				return fmt.Errorf("stream closed")
			}
			e.log.Debug("badge: change event", "kind", ev.Kind.String(), "principal", ev.Principal)
			e.requestForSession(session)
		}
	}
}

func (e *Engine) requestForSession(session uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if session != e.session {
		return
	}
	e.requestLocked()
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	done := make(chan struct{})
	t := e.clock.AfterFunc(d, func() { close(done) })
	select {
	case <-ctx.Done():
		t.Stop()
		return false
	case <-done:
		return true
	}
}
