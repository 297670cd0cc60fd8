package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/recent-precip/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/recent-precip/internal/adapter/kafka"
	"github.com/couchcryptid/recent-precip/internal/adapter/meteostat"
	"github.com/couchcryptid/recent-precip/internal/adapter/openmeteo"
	"github.com/couchcryptid/recent-precip/internal/config"
	"github.com/couchcryptid/recent-precip/internal/domain"
	"github.com/couchcryptid/recent-precip/internal/observability"
	"github.com/couchcryptid/recent-precip/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// Station source (feature-flagged via METEOSTAT_ENABLED / METEOSTAT_API_KEY).
	var station pipeline.StationSource
	if cfg.MeteostatEnabled {
		client := meteostat.NewClient(cfg.MeteostatAPIKey, cfg.MeteostatTimeout, cfg.MeteostatRateLimit, clock, metrics, logger)
		station = meteostat.NewCachedStationSource(client, cfg.MeteostatCacheTTL, cfg.MeteostatCacheSize, clock, metrics, logger)
		logger.Info("meteostat station source enabled",
			"cache_ttl", cfg.MeteostatCacheTTL,
			"cache_size", cfg.MeteostatCacheSize,
			"rate_limit", cfg.MeteostatRateLimit,
		)
	} else {
		logger.Info("meteostat station source disabled, using model only")
	}

	model := openmeteo.NewClient(cfg.OpenMeteoModel, cfg.OpenMeteoTimeout, metrics, logger)
	svc := pipeline.NewService(station, model, domain.NewReconciler(cfg.Reconcile), clock, logger, metrics)

	// Background refresh publishes snapshots only when Kafka and locations are configured.
	var ready httpadapter.ReadinessChecker = svc
	var writer *kafkaadapter.Writer
	var refresher *pipeline.Refresher
	switch {
	case cfg.KafkaEnabled && len(cfg.Locations) > 0:
		writer = kafkaadapter.NewWriter(cfg, logger)
		refresher = pipeline.NewRefresher(svc, writer, cfg.Locations, cfg.RefreshInterval, clock, logger, metrics)
		ready = refresher
	case cfg.KafkaEnabled:
		logger.Warn("kafka enabled but LOCATIONS is empty, refresher disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, svc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh loop.
	if refresher != nil {
		go func() {
			if err := refresher.Run(ctx); err != nil {
				logger.Error("refresher error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
