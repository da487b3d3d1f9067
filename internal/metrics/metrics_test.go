package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.FetchStarted("alice", 3)
	c.FetchSucceeded("alice", 4, 20*time.Millisecond)
	c.FetchStarted("alice", 4)
	c.FetchFailed("alice", errors.New("boom"), time.Second)
	c.StaleResultDiscarded("alice", 3, 4)
	c.RefreshDeferred("alice")
	c.RefreshDeferred("alice")
	c.SubscriptionDropped("alice", nil, time.Second)
	c.Observe(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.fetchesStarted))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.generation))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fetchResults.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fetchResults.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.staleResults))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.deferredRefresh))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.subscriptionDrop))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.unread))
	assert.Equal(t, 2, testutil.CollectAndCount(c.fetchDuration))
}

func TestNewCollectorTwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.Observe(3)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "badgesync_unread_count 3")
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	reg := prometheus.NewRegistry()
	NewCollector(reg).Observe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && len(body) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
