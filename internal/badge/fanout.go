package badge

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/cristianoliveira/badgesync/internal/logging"
)

// Listener receives the new count after every visible state change.
type Listener func(count uint)

type listenerEntry struct {
	id int
	fn Listener
}

// fanout delivers count changes to registered listeners.
//
// Values are enqueued while the engine lock is held, so the queue order is
// the transition order. Delivery happens outside the engine lock. Only one
// goroutine delivers at a time. A listener that triggers another
// transition only enqueues and the running delivery loop hands the value
// out next. Any other goroutine waits in drain until everything it
// enqueued has been delivered.
type fanout struct {
	mu        sync.Mutex
	delivered *sync.Cond
	log       logging.Logger
	nextID    int
	listeners []listenerEntry
	queue     []queuedCount
	enqueued  uint64
	done      uint64

	dispatching bool
	dispatcher  uint64
}

type queuedCount struct {
	seq   uint64
	count uint
}

func newFanout(log logging.Logger) *fanout {
	f := &fanout{log: log}
	f.delivered = sync.NewCond(&f.mu)
	return f
}

func (f *fanout) subscribe(fn Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.listeners = append(f.listeners, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { f.remove(id) })
	}
}

func (f *fanout) remove(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.listeners {
		if l.id == id {
			f.listeners = append(f.listeners[:i:i], f.listeners[i+1:]...)
			return
		}
	}
}

func (f *fanout) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = nil
}

func (f *fanout) enqueue(count uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued++
	f.queue = append(f.queue, queuedCount{seq: f.enqueued, count: count})
}

// drain returns once every value enqueued before the call has reached the
// listeners. Called from inside a listener it returns immediately and the
// outer delivery loop delivers the value after the current round.
func (f *fanout) drain() {
	gid := goroutineID()

	f.mu.Lock()
	defer f.mu.Unlock()
	target := f.enqueued
	for f.done < target {
		switch {
		case !f.dispatching:
			f.dispatch(gid)
		case f.dispatcher == gid:
			return
		default:
			f.delivered.Wait()
		}
	}
}

// dispatch runs the delivery loop. Called with f.mu held.
func (f *fanout) dispatch(gid uint64) {
	f.dispatching = true
	f.dispatcher = gid
	for len(f.queue) > 0 {
		next := f.queue[0]
		f.queue = f.queue[1:]
		targets := make([]listenerEntry, len(f.listeners))
		copy(targets, f.listeners)
		f.mu.Unlock()

		for _, l := range targets {
			f.deliver(l, next.count)
		}

		f.mu.Lock()
		f.done = next.seq
		f.delivered.Broadcast()
	}
	f.dispatching = false
	f.dispatcher = 0
	f.delivered.Broadcast()
}

func (f *fanout) deliver(l listenerEntry, value uint) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("badge: listener panicked", "listener", l.id, "count", value, "panic", fmt.Sprint(r))
		}
	}()
	l.fn(value)
}

// goroutineID returns the runtime id of the calling goroutine, parsed from
// the "goroutine N [...]" header of its stack trace.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(field, ' '); i >= 0 {
		field = field[:i]
	}
	id, err := strconv.ParseUint(string(field), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
