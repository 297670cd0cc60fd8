package domain

import (
	"fmt"
	"time"
)

// SeriesHours is the fixed length of a reconciled series.
const SeriesHours = 48

// Method identifies which source produced a series.
type Method string

const (
	MethodStation       Method = "station"
	MethodModelFallback Method = "model-fallback"
)

// Location is a point of interest. Label is for display only.
type Location struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Label string  `json:"label,omitempty"`
}

// Key rounds the coordinates to two decimals (~1 km), which is finer than
// either upstream resolves.
func (l Location) Key() string {
	return fmt.Sprintf("%.2f_%.2f", l.Lat, l.Lon)
}

// HourlySample is one hour slot of a reconciled series. When Present is
// false both values are nil: no data is not the same as zero precipitation.
type HourlySample struct {
	Time    time.Time `json:"time"`
	RainIn  *float64  `json:"rain_in"`
	SnowIn  *float64  `json:"snow_in"`
	Present bool      `json:"present"`
}

// Source describes where a series came from.
type Source struct {
	Provider    string   `json:"provider"`
	StationID   string   `json:"station_id,omitempty"`
	StationName string   `json:"station_name,omitempty"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`
	GridProduct string   `json:"grid_product,omitempty"`
}

// RecentPrecipSeries is the reconciled 48-hour series for one point.
type RecentPrecipSeries struct {
	FullSeries    []HourlySample `json:"full_series"`
	AsOf          time.Time      `json:"as_of"`
	LagMinutes    int            `json:"lag_minutes"`
	Method        Method         `json:"method"`
	Source        Source         `json:"source"`
	QualityFlags  QualityFlags   `json:"quality_flags"`
	ExpectedHours int            `json:"expected_hours"`
	ReportedHours int            `json:"reported_hours"`
	MissingHours  int            `json:"missing_hours"`
	Timezone      string         `json:"timezone"`
}

// WindowedPrecip is a read-only trailing view of a RecentPrecipSeries.
// Provenance fields are carried from the parent; coverage counts are not.
type WindowedPrecip struct {
	Hours         int            `json:"window_hours"`
	Series        []HourlySample `json:"series"`
	RainTotal     *float64       `json:"rain_total"`
	SnowTotal     float64        `json:"snow_total"`
	CoverageStart time.Time      `json:"coverage_start"`
	CoverageEnd   time.Time      `json:"coverage_end"`
	ExpectedHours int            `json:"expected_hours"`
	ReportedHours int            `json:"reported_hours"`
	MissingHours  int            `json:"missing_hours"`

	AsOf         time.Time    `json:"as_of"`
	LagMinutes   int          `json:"lag_minutes"`
	Method       Method       `json:"method"`
	Source       Source       `json:"source"`
	QualityFlags QualityFlags `json:"quality_flags"`
	Timezone     string       `json:"timezone"`
}

// clone copies the sample so its values are not shared with the original.
func (s HourlySample) clone() HourlySample {
	if s.RainIn != nil {
		v := *s.RainIn
		s.RainIn = &v
	}
	if s.SnowIn != nil {
		v := *s.SnowIn
		s.SnowIn = &v
	}
	return s
}

func presentSample(t time.Time, rainIn, snowIn float64) HourlySample {
	return HourlySample{Time: t, RainIn: &rainIn, SnowIn: &snowIn, Present: true}
}

func absentSample(t time.Time) HourlySample {
	return HourlySample{Time: t}
}

// hourSlots returns the SeriesHours slot times ending at asOf, oldest first.
func hourSlots(asOf time.Time) []time.Time {
	slots := make([]time.Time, SeriesHours)
	for h := range SeriesHours {
		slots[h] = asOf.Add(-time.Duration(SeriesHours-1-h) * time.Hour)
	}
	return slots
}

func countPresent(samples []HourlySample) int {
	n := 0
	for _, s := range samples {
		if s.Present {
			n++
		}
	}
	return n
}

func lagMinutes(asOf, now time.Time) int {
	lag := int(now.Sub(asOf) / time.Minute)
	if lag < 0 {
		return 0
	}
	return lag
}
