package badge

import "errors"

var (
	// ErrSourceUnavailable indicates the count fetch failed or timed out.
	// The engine keeps its last known value when this happens.
	ErrSourceUnavailable = errors.New("count source unavailable")
	// ErrSubscriptionDropped indicates the event stream ended unexpectedly.
	ErrSubscriptionDropped = errors.New("event subscription dropped")
	// ErrStalePrincipal indicates an operation arrived after the session was torn down.
	ErrStalePrincipal = errors.New("stale principal")
	// ErrMissingCountSource indicates the engine was built without a count source.
	ErrMissingCountSource = errors.New("count source is required")
	// ErrEmptyPrincipal indicates Initialize was called with a blank principal.
	ErrEmptyPrincipal = errors.New("principal cannot be empty")
	// ErrDisposed indicates the engine was disposed and cannot be reused.
	ErrDisposed = errors.New("engine disposed")
)
