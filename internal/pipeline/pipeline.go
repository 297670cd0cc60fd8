package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/recent-precip/internal/domain"
	"github.com/couchcryptid/recent-precip/internal/observability"
	"github.com/jonboulle/clockwork"
)

// SeriesBuilder produces the reconciled series for a location.
type SeriesBuilder interface {
	RecentPrecip(ctx context.Context, loc domain.Location) (*domain.RecentPrecipSeries, error)
}

// Publisher delivers a built series downstream.
type Publisher interface {
	Publish(ctx context.Context, loc domain.Location, series *domain.RecentPrecipSeries) error
}

// Refresher rebuilds the series for a fixed set of locations on an interval
// and publishes each snapshot.
type Refresher struct {
	builder   SeriesBuilder
	publisher Publisher
	locations []domain.Location
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool

	publishAttempts int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
}

// NewRefresher creates a Refresher for the given locations.
func NewRefresher(b SeriesBuilder, p Publisher, locations []domain.Location, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Refresher {
	return &Refresher{
		builder:         b,
		publisher:       p,
		locations:       locations,
		interval:        interval,
		clock:           clock,
		logger:          logger,
		metrics:         metrics,
		publishAttempts: 3,
		initialBackoff:  200 * time.Millisecond,
		maxBackoff:      5 * time.Second,
	}
}

// CheckReadiness returns nil once a refresh cycle has published at least one
// series, or an error describing why the service is not yet ready.
func (r *Refresher) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("refresher has not published any series yet")
	}
	return nil
}

// Run refreshes every location immediately and then on each tick until the
// context is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("refresher started",
		"locations", len(r.locations),
		"interval", r.interval.String(),
	)
	r.metrics.RefreshRunning.Set(1)
	defer r.metrics.RefreshRunning.Set(0)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.refreshAll(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("refresher stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}

// refreshAll runs one cycle over every location. Failures are logged and
// counted; they never stop the loop.
func (r *Refresher) refreshAll(ctx context.Context) {
	start := r.clock.Now()
	published := 0

	for _, loc := range r.locations {
		if ctx.Err() != nil {
			return
		}

		series, err := r.builder.RecentPrecip(ctx, loc)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.metrics.RefreshErrors.Inc()
			r.logger.Warn("refresh failed, skipping location",
				"error", err,
				"key", loc.Key(),
				"label", loc.Label,
			)
			continue
		}

		if !r.publish(ctx, loc, series) {
			continue
		}
		published++
	}

	if published > 0 {
		r.ready.Store(true)
	}
	r.logger.Info("refresh cycle complete",
		"published", published,
		"locations", len(r.locations),
		"duration", r.clock.Since(start).String(),
	)
}

// publish delivers one series, retrying with exponential backoff.
func (r *Refresher) publish(ctx context.Context, loc domain.Location, series *domain.RecentPrecipSeries) bool {
	backoff := r.initialBackoff
	for attempt := 1; ; attempt++ {
		err := r.publisher.Publish(ctx, loc, series)
		if err == nil {
			return true
		}
		if ctx.Err() != nil || attempt >= r.publishAttempts {
			r.metrics.PublishErrors.Inc()
			r.logger.Error("publish failed", "error", err, "key", loc.Key(), "attempts", attempt)
			return false
		}
		r.logger.Warn("publish failed, retrying", "error", err, "key", loc.Key(), "attempt", attempt)
		if !sleepWithContext(ctx, backoff) {
			return false
		}
		backoff = nextBackoff(backoff, r.maxBackoff)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
