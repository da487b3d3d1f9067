// Package metrics exports badge engine diagnostics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cristianoliveira/badgesync/internal/badge"
)

const namespace = "badgesync"

// Collector implements badge.Observer. Register one per engine.
type Collector struct {
	fetchesStarted   prometheus.Counter
	fetchResults     *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	staleResults     prometheus.Counter
	deferredRefresh  prometheus.Counter
	subscriptionDrop prometheus.Counter
	unread           prometheus.Gauge
	generation       prometheus.Gauge
}

var _ badge.Observer = (*Collector)(nil)

// NewCollector registers the badge metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		fetchesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_started_total",
			Help:      "Authoritative count fetches started.",
		}),
		fetchResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Completed count fetches by result.",
		}, []string{"result"}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching the authoritative count.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"result"}),
		staleResults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_total",
			Help:      "Fetch results discarded because a newer write happened.",
		}),
		deferredRefresh: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_deferred_total",
			Help:      "Refresh requests deferred by the post-clear cooldown.",
		}),
		subscriptionDrop: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_drops_total",
			Help:      "Change event streams that ended or failed to open.",
		}),
		unread: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread_count",
			Help:      "Badge value last published to consumers.",
		}),
		generation: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_generation",
			Help:      "Generation of the most recently started fetch.",
		}),
	}
}

func (c *Collector) FetchStarted(_ string, generation uint64) {
	c.fetchesStarted.Inc()
	c.generation.Set(float64(generation))
}

func (c *Collector) FetchSucceeded(_ string, _ uint, elapsed time.Duration) {
	c.fetchResults.WithLabelValues("success").Inc()
	c.fetchDuration.WithLabelValues("success").Observe(elapsed.Seconds())
}

func (c *Collector) FetchFailed(_ string, _ error, elapsed time.Duration) {
	c.fetchResults.WithLabelValues("failure").Inc()
	c.fetchDuration.WithLabelValues("failure").Observe(elapsed.Seconds())
}

func (c *Collector) StaleResultDiscarded(string, uint64, uint64) {
	c.staleResults.Inc()
}

func (c *Collector) RefreshDeferred(string) {
	c.deferredRefresh.Inc()
}

func (c *Collector) SubscriptionDropped(string, error, time.Duration) {
	c.subscriptionDrop.Inc()
}

// Observe is a badge listener that tracks the published value.
func (c *Collector) Observe(count uint) {
	c.unread.Set(float64(count))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics: serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
