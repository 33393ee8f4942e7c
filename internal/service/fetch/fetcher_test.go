package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketPulse/internal/domain/models"
	xlogger "MarketPulse/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordFetch(provider, dataType, outcome string)            {}
func (nopMetrics) RecordCacheHit(dataType string)                            {}
func (nopMetrics) RecordCacheMiss(dataType string)                           {}
func (nopMetrics) RecordCycle(kind string, ok, fallback, cached, failed int) {}
func (nopMetrics) RecordAlert(alertType, outcome string)                     {}
func (nopMetrics) RecordError(kind string)                                   {}
func (nopMetrics) RecordLatency(op string, seconds float64)                  {}
func (nopMetrics) RecordMetricValue(metric string, value float64)            {}

func testLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func testSpec(id, baseURL string, timeout time.Duration) models.ProviderSpec {
	return models.ProviderSpec{
		ID:       id,
		BaseURL:  baseURL,
		MaxCalls: 100,
		Window:   time.Minute,
		Timeout:  timeout,
	}
}

func TestDoRateLimitRetriedExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewFetcher([]models.ProviderSpec{testSpec("agg", srv.URL, time.Second)},
		testLogger(t), nopMetrics{}, WithRetryBackoff(10*time.Millisecond))
	defer f.Close()

	_, err := f.Do(context.Background(), "agg", &Request{Path: "/v1/data"})
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoRateLimitRecoversAfterBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := NewFetcher([]models.ProviderSpec{testSpec("agg", srv.URL, time.Second)},
		testLogger(t), nopMetrics{}, WithRetryBackoff(10*time.Millisecond))
	defer f.Close()

	resp, err := f.Do(context.Background(), "agg", &Request{Path: "/v1/data"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := NewFetcher([]models.ProviderSpec{testSpec("agg", srv.URL, 50*time.Millisecond)},
		testLogger(t), nopMetrics{})
	defer f.Close()

	_, err := f.Do(context.Background(), "agg", &Request{Path: "/slow"})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestDoHTTPStatusClassified(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher([]models.ProviderSpec{testSpec("agg", srv.URL, time.Second)},
		testLogger(t), nopMetrics{})
	defer f.Close()

	_, err := f.Do(context.Background(), "agg", &Request{Path: "/v1/data"})
	require.Error(t, err)
	assert.Equal(t, KindHTTP, KindOf(err))
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusInternalServerError, fe.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoUnknownProvider(t *testing.T) {
	f := NewFetcher(nil, testLogger(t), nopMetrics{})
	defer f.Close()

	_, err := f.Do(context.Background(), "nope", &Request{Path: "/"})
	assert.Equal(t, KindUnavailable, KindOf(err))
}

func TestDoSerializedPerProvider(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		for {
			m := maxSeen.Load()
			if cur <= m || maxSeen.CompareAndSwap(m, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := NewFetcher([]models.ProviderSpec{testSpec("agg", srv.URL, time.Second)},
		testLogger(t), nopMetrics{})
	defer f.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Do(context.Background(), "agg", &Request{Path: "/v1/data"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestCloseReleasesQueuedCallers(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	defer close(release)

	f := NewFetcher([]models.ProviderSpec{testSpec("agg", srv.URL, 5*time.Second)},
		testLogger(t), nopMetrics{})

	// occupy the worker with a request that blocks on the server
	go func() {
		_, _ = f.Do(context.Background(), "agg", &Request{Path: "/first"})
	}()
	time.Sleep(20 * time.Millisecond)

	// queue a second request behind it, with no caller deadline
	queued := make(chan error, 1)
	go func() {
		_, err := f.Do(context.Background(), "agg", &Request{Path: "/second"})
		queued <- err
	}()
	time.Sleep(20 * time.Millisecond)

	f.Close()

	select {
	case err := <-queued:
		require.Error(t, err)
		assert.Equal(t, KindUnavailable, KindOf(err))
	case <-time.After(time.Second):
		t.Fatal("queued call was not released after Close")
	}
}

func TestDoAfterCloseUnavailable(t *testing.T) {
	f := NewFetcher([]models.ProviderSpec{testSpec("agg", "http://127.0.0.1:0", time.Second)},
		testLogger(t), nopMetrics{})
	f.Close()

	_, err := f.Do(context.Background(), "agg", &Request{Path: "/"})
	assert.Equal(t, KindUnavailable, KindOf(err))
}
