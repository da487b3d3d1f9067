package badge

import (
	"time"

	"github.com/cristianoliveira/badgesync/internal/config"
	"github.com/cristianoliveira/badgesync/internal/logging"
)

// Default tunables. They were picked to avoid visible flicker, not derived
// from a model, and are all overridable.
const (
	DefaultDebounceWindow     = 500 * time.Millisecond
	DefaultCooldownWindow     = 2 * time.Second
	DefaultCooldownGrace      = 50 * time.Millisecond
	DefaultFetchTimeout       = 10 * time.Second
	DefaultMinFetchSpacing    = 800 * time.Millisecond
	DefaultFetchRetryMax      = 3
	DefaultResubscribeInitial = 500 * time.Millisecond
	DefaultResubscribeMax     = 30 * time.Second
)

// Options configures an Engine.
type Options struct {
	// Counts is the authoritative count source. Required.
	Counts CountSource
	// Events is the push channel. Optional; without it the engine only
	// refreshes on explicit requests.
	Events EventSource

	DebounceWindow     time.Duration
	CooldownWindow     time.Duration
	CooldownGrace      time.Duration
	FetchTimeout       time.Duration
	MinFetchSpacing    time.Duration
	FetchRetryMax      int
	ResubscribeInitial time.Duration
	ResubscribeMax     time.Duration

	Clock    Clock
	Logger   logging.Logger
	Observer Observer
}

// DefaultOptions returns Options with every tunable set to its default.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:     DefaultDebounceWindow,
		CooldownWindow:     DefaultCooldownWindow,
		CooldownGrace:      DefaultCooldownGrace,
		FetchTimeout:       DefaultFetchTimeout,
		MinFetchSpacing:    DefaultMinFetchSpacing,
		FetchRetryMax:      DefaultFetchRetryMax,
		ResubscribeInitial: DefaultResubscribeInitial,
		ResubscribeMax:     DefaultResubscribeMax,
	}
}

// OptionsFromConfig reads the engine tunables from the global configuration.
// Adapters, clock, logger and observer are left for the caller to fill in.
func OptionsFromConfig() Options {
	opts := DefaultOptions()
	opts.DebounceWindow = millis("debounce_ms", opts.DebounceWindow)
	opts.CooldownWindow = millis("cooldown_ms", opts.CooldownWindow)
	opts.CooldownGrace = millis("cooldown_grace_ms", opts.CooldownGrace)
	opts.FetchTimeout = millis("fetch_timeout_ms", opts.FetchTimeout)
	opts.MinFetchSpacing = millis("min_fetch_spacing_ms", opts.MinFetchSpacing)
	opts.FetchRetryMax = config.GetInt("fetch_retry_max", opts.FetchRetryMax)
	opts.ResubscribeInitial = millis("resubscribe_initial_ms", opts.ResubscribeInitial)
	opts.ResubscribeMax = millis("resubscribe_max_ms", opts.ResubscribeMax)
	return opts
}

func millis(key string, def time.Duration) time.Duration {
	return time.Duration(config.GetInt(key, int(def/time.Millisecond))) * time.Millisecond
}

// withDefaults fills zero values so a partially built Options is usable.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.CooldownWindow <= 0 {
		o.CooldownWindow = d.CooldownWindow
	}
	if o.CooldownGrace <= 0 {
		o.CooldownGrace = d.CooldownGrace
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = d.FetchTimeout
	}
	if o.MinFetchSpacing < 0 {
		o.MinFetchSpacing = 0
	}
	if o.FetchRetryMax < 0 {
		o.FetchRetryMax = 0
	}
	if o.ResubscribeInitial <= 0 {
		o.ResubscribeInitial = d.ResubscribeInitial
	}
	if o.ResubscribeMax <= 0 {
		o.ResubscribeMax = d.ResubscribeMax
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	if o.Logger == nil {
		o.Logger = logging.GetGlobal()
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	return o
}
