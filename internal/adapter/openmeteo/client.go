// Package openmeteo fetches hourly model precipitation from the Open-Meteo
// forecast API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/recent-precip/internal/adapter/upstream"
	"github.com/couchcryptid/recent-precip/internal/domain"
	"github.com/couchcryptid/recent-precip/internal/observability"
)

const (
	defaultBaseURL = "https://api.open-meteo.com/v1/forecast"
	sourceLabel    = "openmeteo"
	mmPerInch      = 25.4
)

// Client implements the model source using the Open-Meteo forecast API.
type Client struct {
	model   string
	baseURL string
	http    *upstream.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates an Open-Meteo client. An empty model lets Open-Meteo
// pick its best-match blend.
func NewClient(model string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		model:   model,
		baseURL: defaultBaseURL,
		http: upstream.NewClient(sourceLabel,
			&http.Client{Timeout: timeout},
			upstream.DefaultBackoff(),
			0,
		),
		metrics: metrics,
		logger:  logger,
	}
}

// FetchHourly returns the past three days and next two days of hourly
// precipitation (inches), snowfall (cm) and temperature (°F) for the point,
// stamped in UTC. The location's timezone name is kept for display.
func (c *Client) FetchHourly(ctx context.Context, loc domain.Location) (*domain.ModelHourly, error) {
	// Precipitation stays in mm on the wire so snowfall arrives in cm.
	// Local wall-clock hours carry only the current UTC offset, which is wrong
	// for hours before a DST change, so hours come back as unix seconds.
	params := url.Values{
		"latitude":         {strconv.FormatFloat(loc.Lat, 'f', -1, 64)},
		"longitude":        {strconv.FormatFloat(loc.Lon, 'f', -1, 64)},
		"hourly":           {"precipitation,snowfall,temperature_2m"},
		"temperature_unit": {"fahrenheit"},
		"timezone":         {"auto"},
		"timeformat":       {"unixtime"},
		"past_days":        {"3"},
		"forecast_days":    {"2"},
	}
	if c.model != "" {
		params.Set("models", c.model)
	}
	fullURL := c.baseURL + "?" + params.Encode()

	start := time.Now()
	model, err := c.doRequest(ctx, fullURL)
	c.metrics.UpstreamDuration.WithLabelValues(sourceLabel).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(sourceLabel, "error").Inc()
		return nil, err
	}
	if len(model.Time) == 0 {
		c.metrics.UpstreamRequests.WithLabelValues(sourceLabel, "empty").Inc()
	} else {
		c.metrics.UpstreamRequests.WithLabelValues(sourceLabel, "success").Inc()
	}
	return model, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (*domain.ModelHourly, error) {
	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("open-meteo request: %w", err)
	}
	defer resp.Body.Close()

	var fr forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decode open-meteo response: %w", err)
	}
	return fr.toDomain(c.model), nil
}

// Open-Meteo API response types.

type forecastResponse struct {
	Timezone         string `json:"timezone"`
	UTCOffsetSeconds int    `json:"utc_offset_seconds"`
	Hourly           hourly `json:"hourly"`
}

type hourly struct {
	Time          []int64    `json:"time"` // unix seconds
	Precipitation []*float64 `json:"precipitation"` // mm
	Snowfall      []*float64 `json:"snowfall"`      // cm
	Temperature   []*float64 `json:"temperature_2m"`
}

func (r forecastResponse) toDomain(gridProduct string) *domain.ModelHourly {
	precip := make([]*float64, len(r.Hourly.Precipitation))
	for i, mm := range r.Hourly.Precipitation {
		if mm != nil {
			in := *mm / mmPerInch
			precip[i] = &in
		}
	}
	times := make([]string, len(r.Hourly.Time))
	for i, sec := range r.Hourly.Time {
		times[i] = time.Unix(sec, 0).UTC().Format(time.RFC3339)
	}
	return &domain.ModelHourly{
		Time:             times,
		Precipitation:    precip,
		Snowfall:         r.Hourly.Snowfall,
		Temperature:      r.Hourly.Temperature,
		Timezone:         r.Timezone,
		UTCOffsetSeconds: r.UTCOffsetSeconds,
		GridProduct:      gridProduct,
	}
}
