package meteostat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/recent-precip/internal/domain"
	"github.com/couchcryptid/recent-precip/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingFetcher struct {
	calls   atomic.Int32
	payload *domain.StationPayload
	err     error
	release chan struct{} // when set, fetches block until closed
	started chan struct{}
}

func (m *countingFetcher) FetchHourly(_ context.Context, _ domain.Location) (*domain.StationPayload, error) {
	if m.calls.Add(1) == 1 && m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		<-m.release
	}
	return m.payload, m.err
}

func samplePayload() *domain.StationPayload {
	prcp := 1.0
	return &domain.StationPayload{Data: []domain.StationRow{{Time: "2024-03-10 13:00:00", Prcp: &prcp}}}
}

func newTestCache(inner Fetcher, clock clockwork.Clock) (*CachedStationSource, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewCachedStationSource(inner, 30*time.Minute, 8, clock, m, testLogger()), m
}

// --- CachedStationSource tests ---

func TestCachedStationSource_Hit(t *testing.T) {
	inner := &countingFetcher{payload: samplePayload()}
	cached, m := newTestCache(inner, clockwork.NewFakeClockAt(testNow))

	p1, err := cached.FetchHourly(context.Background(), denver)
	require.NoError(t, err)
	p2, err := cached.FetchHourly(context.Background(), denver)
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.Equal(t, int32(1), inner.calls.Load(), "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationCache.WithLabelValues("miss")))
}

func TestCachedStationSource_RoundedKeyShared(t *testing.T) {
	inner := &countingFetcher{payload: samplePayload()}
	cached, _ := newTestCache(inner, clockwork.NewFakeClockAt(testNow))

	_, _ = cached.FetchHourly(context.Background(), domain.Location{Lat: 39.7392, Lon: -104.9903})
	_, _ = cached.FetchHourly(context.Background(), domain.Location{Lat: 39.7401, Lon: -104.9899})

	assert.Equal(t, int32(1), inner.calls.Load(), "both points round to 39.74_-104.99")
}

func TestCachedStationSource_DifferentKeysMiss(t *testing.T) {
	inner := &countingFetcher{payload: samplePayload()}
	cached, _ := newTestCache(inner, clockwork.NewFakeClockAt(testNow))

	_, _ = cached.FetchHourly(context.Background(), denver)
	_, _ = cached.FetchHourly(context.Background(), domain.Location{Lat: 40.01, Lon: -105.27})

	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedStationSource_Expires(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	inner := &countingFetcher{payload: samplePayload()}
	cached, _ := newTestCache(inner, clock)

	_, _ = cached.FetchHourly(context.Background(), denver)
	clock.Advance(29 * time.Minute)
	_, _ = cached.FetchHourly(context.Background(), denver)
	assert.Equal(t, int32(1), inner.calls.Load())

	clock.Advance(time.Minute)
	_, _ = cached.FetchHourly(context.Background(), denver)
	assert.Equal(t, int32(2), inner.calls.Load(), "entry is stale at exactly the TTL")
}

func TestCachedStationSource_CachesEmptyResult(t *testing.T) {
	inner := &countingFetcher{}
	cached, _ := newTestCache(inner, clockwork.NewFakeClockAt(testNow))

	p, err := cached.FetchHourly(context.Background(), denver)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, _ = cached.FetchHourly(context.Background(), denver)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachedStationSource_ErrorsNotCached(t *testing.T) {
	inner := &countingFetcher{err: errors.New("upstream down")}
	cached, _ := newTestCache(inner, clockwork.NewFakeClockAt(testNow))

	_, err := cached.FetchHourly(context.Background(), denver)
	require.Error(t, err)
	_, err = cached.FetchHourly(context.Background(), denver)
	require.Error(t, err)

	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedStationSource_CoalescesConcurrentFetches(t *testing.T) {
	inner := &countingFetcher{
		payload: samplePayload(),
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	cached, _ := newTestCache(inner, clockwork.NewFakeClockAt(testNow))

	const callers = 5
	results := make([]*domain.StationPayload, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := cached.FetchHourly(context.Background(), denver)
			assert.NoError(t, err)
			results[i] = p
		}()
	}

	<-inner.started
	time.Sleep(20 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.Equal(t, int32(1), inner.calls.Load())
	for _, p := range results {
		assert.Same(t, results[0], p)
	}
}

func TestCachedStationSource_CallerCancelDoesNotAbortFetch(t *testing.T) {
	inner := &countingFetcher{
		payload: samplePayload(),
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	cached, _ := newTestCache(inner, clockwork.NewFakeClockAt(testNow))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cached.FetchHourly(ctx, denver)
		errCh <- err
	}()

	<-inner.started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(inner.release)
	require.Eventually(t, func() bool { return cached.cache.len() == 1 }, time.Second, 5*time.Millisecond)

	p, err := cached.FetchHourly(context.Background(), denver)
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, int32(1), inner.calls.Load())
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)
	a := samplePayload()

	c.put("a", a, testNow)
	c.put("b", samplePayload(), testNow)

	got, ok := c.get("a", testNow, time.Hour)
	assert.True(t, ok)
	assert.Same(t, a, got)

	_, ok = c.get("missing", testNow, time.Hour)
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", samplePayload(), testNow)
	c.put("b", samplePayload(), testNow)
	c.put("c", samplePayload(), testNow) // evicts "a"

	_, ok := c.get("a", testNow, time.Hour)
	assert.False(t, ok, "a should have been evicted")
	_, ok = c.get("b", testNow, time.Hour)
	assert.True(t, ok)
	_, ok = c.get("c", testNow, time.Hour)
	assert.True(t, ok)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", samplePayload(), testNow)
	c.put("b", samplePayload(), testNow)
	c.get("a", testNow, time.Hour)
	c.put("c", samplePayload(), testNow)

	_, ok := c.get("a", testNow, time.Hour)
	assert.True(t, ok, "a was accessed recently, should not be evicted")
	_, ok = c.get("b", testNow, time.Hour)
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateRefreshesTimestamp(t *testing.T) {
	c := newLRUCache(2)
	fresh := samplePayload()

	c.put("a", samplePayload(), testNow)
	c.put("a", fresh, testNow.Add(time.Hour))

	got, ok := c.get("a", testNow.Add(90*time.Minute), time.Hour)
	assert.True(t, ok)
	assert.Same(t, fresh, got)
	assert.Equal(t, 1, c.len())
}

func TestLRUCache_ExpiredEntryDropped(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", samplePayload(), testNow)

	_, ok := c.get("a", testNow.Add(2*time.Hour), time.Hour)
	assert.False(t, ok)
	assert.Equal(t, 0, c.len())
}
