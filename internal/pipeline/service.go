package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/recent-precip/internal/domain"
	"github.com/couchcryptid/recent-precip/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// ErrNoData is returned when neither source yields a usable series.
var ErrNoData = errors.New("no usable precipitation data")

// StationSource fetches station observations. A nil payload means no rows.
type StationSource interface {
	FetchHourly(ctx context.Context, loc domain.Location) (*domain.StationPayload, error)
}

// ModelSource fetches hourly model output.
type ModelSource interface {
	FetchHourly(ctx context.Context, loc domain.Location) (*domain.ModelHourly, error)
}

// Service fetches both sources for a location and reconciles them.
type Service struct {
	station    StationSource
	model      ModelSource
	reconciler *domain.Reconciler
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewService creates a Service. Pass a nil station source to always use the
// model.
func NewService(station StationSource, model ModelSource, reconciler *domain.Reconciler, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if station != nil {
		metrics.StationEnabled.Set(1)
	}
	return &Service{
		station:    station,
		model:      model,
		reconciler: reconciler,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// RecentPrecip returns the reconciled 48-hour series for loc. Station
// failures degrade to the model; a model failure is returned to the caller.
func (s *Service) RecentPrecip(ctx context.Context, loc domain.Location) (*domain.RecentPrecipSeries, error) {
	var (
		station *domain.StationPayload
		model   *domain.ModelHourly
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.station != nil {
		g.Go(func() error {
			payload, err := s.station.FetchHourly(gctx, loc)
			if err != nil {
				// Station data is optional.
				s.logger.Warn("station fetch failed, using model only",
					"error", err,
					"key", loc.Key(),
				)
				return nil
			}
			station = payload
			return nil
		})
	}
	g.Go(func() error {
		payload, err := s.model.FetchHourly(gctx, loc)
		if err != nil {
			return fmt.Errorf("fetch model: %w", err)
		}
		model = payload
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	series := s.reconciler.Build(station, model, s.clock.Now())
	if series == nil {
		s.metrics.SeriesNoData.Inc()
		return nil, ErrNoData
	}
	s.record(series)

	s.logger.Debug("series built",
		"key", loc.Key(),
		"method", series.Method,
		"as_of", series.AsOf.Format(time.RFC3339),
		"lag_minutes", series.LagMinutes,
		"missing_hours", series.MissingHours,
		"flags", series.QualityFlags,
	)
	return series, nil
}

// CheckReadiness always succeeds: every request fetches fresh data.
func (s *Service) CheckReadiness(_ context.Context) error {
	return nil
}

func (s *Service) record(series *domain.RecentPrecipSeries) {
	s.metrics.SeriesBuilt.WithLabelValues(string(series.Method)).Inc()
	s.metrics.SeriesLag.Observe(float64(series.LagMinutes))
	for _, f := range series.QualityFlags {
		s.metrics.QualityFlags.WithLabelValues(string(f)).Inc()
	}
}
