package meteostat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/recent-precip/internal/adapter/upstream"
	"github.com/couchcryptid/recent-precip/internal/domain"
	"github.com/couchcryptid/recent-precip/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	rapidAPIHost   = "meteostat.p.rapidapi.com"
	defaultBaseURL = "https://" + rapidAPIHost + "/point/hourly"
	sourceLabel    = "meteostat"

	// lookback is how far before today the request window starts.
	lookback = 3 * 24 * time.Hour
)

// ErrNoAPIKey is returned when the client has no RapidAPI key configured.
var ErrNoAPIKey = errors.New("meteostat: no API key configured")

// Client fetches hourly station observations from Meteostat via RapidAPI.
type Client struct {
	apiKey  string
	baseURL string
	http    *upstream.Client
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a Meteostat client limited to rps requests per second.
func NewClient(apiKey string, timeout time.Duration, rps float64, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: upstream.NewClient(sourceLabel,
			&http.Client{Timeout: timeout},
			upstream.DefaultBackoff(),
			rps,
		),
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchHourly returns observations from three days before today through
// today (UTC dates) for the point. A response without rows yields nil.
func (c *Client) FetchHourly(ctx context.Context, loc domain.Location) (*domain.StationPayload, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	now := c.clock.Now().UTC()
	params := url.Values{
		"lat":   {strconv.FormatFloat(loc.Lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(loc.Lon, 'f', -1, 64)},
		"start": {now.Add(-lookback).Format(time.DateOnly)},
		"end":   {now.Format(time.DateOnly)},
	}
	fullURL := c.baseURL + "?" + params.Encode()

	start := time.Now()
	payload, err := c.doRequest(ctx, fullURL)
	c.metrics.UpstreamDuration.WithLabelValues(sourceLabel).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.UpstreamRequests.WithLabelValues(sourceLabel, "error").Inc()
		return nil, err
	case payload == nil:
		c.metrics.UpstreamRequests.WithLabelValues(sourceLabel, "empty").Inc()
		c.logger.Debug("meteostat returned no rows", "key", loc.Key())
		return nil, nil
	}
	c.metrics.UpstreamRequests.WithLabelValues(sourceLabel, "success").Inc()
	return payload, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (*domain.StationPayload, error) {
	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-RapidAPI-Key", c.apiKey)
		req.Header.Set("X-RapidAPI-Host", rapidAPIHost)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("meteostat request: %w", err)
	}
	defer resp.Body.Close()

	var payload domain.StationPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode meteostat response: %w", err)
	}
	if len(payload.Data) == 0 {
		return nil, nil
	}
	return &payload, nil
}
