package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/recent-precip/internal/domain"
	"github.com/couchcryptid/recent-precip/internal/pipeline"
	"github.com/go-playground/validator/v10"
)

const (
	defaultWindowHours = 12
	requestTimeout     = 25 * time.Second
)

var validate = validator.New()

// pointQuery holds the query parameters identifying a location.
type pointQuery struct {
	Lat   string `validate:"required,latitude"`
	Lon   string `validate:"required,longitude"`
	Label string `validate:"max=128"`
}

func (q pointQuery) toLocation() domain.Location {
	// Both values passed the latitude/longitude validators.
	lat, _ := strconv.ParseFloat(q.Lat, 64)
	lon, _ := strconv.ParseFloat(q.Lon, 64)
	return domain.Location{Lat: lat, Lon: lon, Label: q.Label}
}

func parsePointQuery(values url.Values) (pointQuery, error) {
	q := pointQuery{
		Lat:   values.Get("lat"),
		Lon:   values.Get("lon"),
		Label: values.Get("label"),
	}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// windowQuery adds the trailing window length.
type windowQuery struct {
	Point pointQuery
	Hours int `validate:"min=1,max=48"`
}

func parseWindowQuery(values url.Values) (windowQuery, error) {
	point, err := parsePointQuery(values)
	if err != nil {
		return windowQuery{}, err
	}
	q := windowQuery{Point: point, Hours: defaultWindowHours}
	if raw := values.Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New("hours must be an integer")
		}
		q.Hours = n
	}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// handleWindow serves the trailing window of the reconciled series.
func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	q, err := parseWindowQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	series, ok := s.build(w, r, q.Point.toLocation())
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, domain.Window(series, q.Hours))
}

// handleSeries serves the full 48-hour reconciled series.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	q, err := parsePointQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	series, ok := s.build(w, r, q.toLocation())
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// build fetches the series and writes the error response when it fails.
func (s *Server) build(w http.ResponseWriter, r *http.Request, loc domain.Location) (*domain.RecentPrecipSeries, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	series, err := s.series.RecentPrecip(ctx, loc)
	switch {
	case errors.Is(err, pipeline.ErrNoData):
		writeError(w, http.StatusNotFound, "no precipitation data for requested location")
		return nil, false
	case err != nil:
		s.logger.Error("recent precip failed", "error", err, "key", loc.Key())
		writeError(w, http.StatusBadGateway, "upstream weather data unavailable")
		return nil, false
	}
	return series, true
}
