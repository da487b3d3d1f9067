package badge

import "time"

// Observer receives engine diagnostics. Implementations must be safe for
// concurrent use and must not call back into the engine.
type Observer interface {
	FetchStarted(principal string, generation uint64)
	FetchSucceeded(principal string, count uint, elapsed time.Duration)
	FetchFailed(principal string, err error, elapsed time.Duration)
	StaleResultDiscarded(principal string, fetchGeneration, currentGeneration uint64)
	RefreshDeferred(principal string)
	SubscriptionDropped(principal string, err error, retryIn time.Duration)
}

// NopObserver discards all diagnostics.
type NopObserver struct{}

func (NopObserver) FetchStarted(string, uint64)                      {}
func (NopObserver) FetchSucceeded(string, uint, time.Duration)       {}
func (NopObserver) FetchFailed(string, error, time.Duration)         {}
func (NopObserver) StaleResultDiscarded(string, uint64, uint64)      {}
func (NopObserver) RefreshDeferred(string)                           {}
func (NopObserver) SubscriptionDropped(string, error, time.Duration) {}
