package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/recent-precip/internal/domain"
	"github.com/couchcryptid/recent-precip/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockBuilder struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (m *mockBuilder) RecentPrecip(_ context.Context, loc domain.Location) (*domain.RecentPrecipSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, loc.Key())
	if err := m.fail[loc.Key()]; err != nil {
		return nil, err
	}
	return &domain.RecentPrecipSeries{Method: domain.MethodStation, ExpectedHours: domain.SeriesHours}, nil
}

func (m *mockBuilder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockPublisher struct {
	mu        sync.Mutex
	failTimes int
	published []string
	attempts  int
}

func (m *mockPublisher) Publish(_ context.Context, loc domain.Location, _ *domain.RecentPrecipSeries) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.failTimes > 0 {
		m.failTimes--
		return errors.New("broker unavailable")
	}
	m.published = append(m.published, loc.Key())
	return nil
}

func (m *mockPublisher) publishedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.published...)
}

var (
	denver  = domain.Location{Lat: 39.74, Lon: -104.99, Label: "Denver"}
	boulder = domain.Location{Lat: 40.01, Lon: -105.27, Label: "Boulder"}
)

func newTestRefresher(b SeriesBuilder, p Publisher, clock clockwork.Clock, metrics *observability.Metrics) *Refresher {
	r := NewRefresher(b, p, []domain.Location{denver, boulder}, 15*time.Minute, clock,
		slog.New(slog.NewTextHandler(io.Discard, nil)), metrics)
	r.initialBackoff = time.Millisecond
	r.maxBackoff = 2 * time.Millisecond
	return r
}

// --- tests ---

func TestRefresher_Run_PublishesEveryLocation(t *testing.T) {
	builder := &mockBuilder{}
	pub := &mockPublisher{}
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	r := newTestRefresher(builder, pub, clock, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return len(pub.publishedKeys()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"39.74_-104.99", "40.01_-105.27"}, pub.publishedKeys())
	require.Eventually(t, func() bool { return r.CheckReadiness(ctx) == nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshRunning))

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.RefreshRunning))
}

func TestRefresher_Run_RefreshesOnTick(t *testing.T) {
	builder := &mockBuilder{}
	pub := &mockPublisher{}
	clock := clockwork.NewFakeClock()
	r := newTestRefresher(builder, pub, clock, observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	require.Eventually(t, func() bool { return builder.callCount() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(15 * time.Minute)
	require.Eventually(t, func() bool { return builder.callCount() == 4 }, time.Second, 5*time.Millisecond)
}

func TestRefresher_Run_BuildErrorSkipsLocation(t *testing.T) {
	builder := &mockBuilder{fail: map[string]error{denver.Key(): ErrNoData}}
	pub := &mockPublisher{}
	metrics := observability.NewMetricsForTesting()
	r := newTestRefresher(builder, pub, clockwork.NewFakeClock(), metrics)

	r.refreshAll(context.Background())

	assert.Equal(t, []string{boulder.Key()}, pub.publishedKeys())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RefreshErrors))
	assert.NoError(t, r.CheckReadiness(context.Background()))
}

func TestRefresher_Publish_RetriesThenSucceeds(t *testing.T) {
	pub := &mockPublisher{failTimes: 2}
	metrics := observability.NewMetricsForTesting()
	r := newTestRefresher(&mockBuilder{}, pub, clockwork.NewFakeClock(), metrics)

	ok := r.publish(context.Background(), denver, &domain.RecentPrecipSeries{})

	assert.True(t, ok)
	assert.Equal(t, 3, pub.attempts)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PublishErrors))
}

func TestRefresher_Publish_GivesUp(t *testing.T) {
	pub := &mockPublisher{failTimes: 10}
	metrics := observability.NewMetricsForTesting()
	r := newTestRefresher(&mockBuilder{}, pub, clockwork.NewFakeClock(), metrics)

	r.refreshAll(context.Background())

	assert.Equal(t, 6, pub.attempts, "three attempts per location")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.PublishErrors))
	assert.Error(t, r.CheckReadiness(context.Background()))
}

func TestRefresher_NotReadyBeforeRun(t *testing.T) {
	r := newTestRefresher(&mockBuilder{}, &mockPublisher{}, clockwork.NewFakeClock(), observability.NewMetricsForTesting())
	err := r.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not published")
}

func TestRefresher_Run_ContextCancelled(t *testing.T) {
	builder := &mockBuilder{}
	r := newTestRefresher(builder, &mockPublisher{}, clockwork.NewFakeClock(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, 0, builder.callCount())
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 400*time.Millisecond, nextBackoff(200*time.Millisecond, 5*time.Second))
	assert.Equal(t, 5*time.Second, nextBackoff(4*time.Second, 5*time.Second))
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepWithContext(ctx, time.Hour))
	assert.True(t, sleepWithContext(context.Background(), 0))
}
