package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
	_ "time/tzdata" // model timezones resolve without a system zoneinfo
)

// StationPayload is the Meteostat point/hourly response body.
type StationPayload struct {
	Meta *StationMeta `json:"meta,omitempty"`
	Data []StationRow `json:"data"`
}

// StationRow is one Meteostat observation. Time is UTC without a zone suffix.
type StationRow struct {
	Time string   `json:"time"`
	Prcp *float64 `json:"prcp"` // mm
	Snow *float64 `json:"snow"` // snow depth, mm
}

// StationMeta lists the stations Meteostat interpolated from, nearest first.
type StationMeta struct {
	Stations []StationInfo `json:"stations"`
}

// StationInfo identifies a station. Meteostat returns either a bare station
// ID or an object; both decode here.
type StationInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Distance *float64 `json:"distance"` // meters
}

func (s *StationInfo) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*s = StationInfo{ID: id}
		return nil
	}
	var obj struct {
		ID       string          `json:"id"`
		Name     json.RawMessage `json:"name"`
		Distance *float64        `json:"distance"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("decode station info: %w", err)
	}
	*s = StationInfo{ID: obj.ID, Name: decodeStationName(obj.Name), Distance: obj.Distance}
	return nil
}

// decodeStationName accepts "Denver" or {"en": "Denver", ...}.
func decodeStationName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}
	var localized map[string]string
	if err := json.Unmarshal(raw, &localized); err == nil {
		return localized["en"]
	}
	return ""
}

// ModelHourly is the hourly block of an Open-Meteo forecast, with the
// location's timezone metadata. Arrays are index-aligned with Time. Times are
// either RFC 3339 with an offset or local wall-clock hours in Timezone.
type ModelHourly struct {
	Time             []string   `json:"time"`
	Precipitation    []*float64 `json:"precipitation"`  // inches
	Snowfall         []*float64 `json:"snowfall"`       // cm per hour
	Temperature      []*float64 `json:"temperature_2m"` // °F
	Timezone         string     `json:"timezone"`
	UTCOffsetSeconds int        `json:"utc_offset_seconds"`
	GridProduct      string     `json:"grid_product,omitempty"`
}

// observation is a station row with its timestamp resolved.
type observation struct {
	time time.Time
	prcp *float64
	snow *float64
}

var stationTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC3339,
}

var modelTimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// observations resolves row timestamps and returns them in chronological
// order. Rows with unparseable times are dropped; equal times keep their
// original relative order.
func (p *StationPayload) observations() []observation {
	if p == nil || len(p.Data) == 0 {
		return nil
	}
	obs := make([]observation, 0, len(p.Data))
	for _, r := range p.Data {
		t, ok := parseTime(r.Time, stationTimeLayouts, time.UTC)
		if !ok {
			continue
		}
		obs = append(obs, observation{time: t, prcp: r.Prcp, snow: r.Snow})
	}
	slices.SortStableFunc(obs, func(a, b observation) int { return a.time.Compare(b.time) })
	return obs
}

// nearestStation returns the first listed station, if any.
func (p *StationPayload) nearestStation() (StationInfo, bool) {
	if p == nil || p.Meta == nil || len(p.Meta.Stations) == 0 {
		return StationInfo{}, false
	}
	return p.Meta.Stations[0], true
}

// hours resolves model timestamps to UTC. Unparseable entries become the
// zero time so indices stay aligned with the value arrays.
func (m *ModelHourly) hours() []time.Time {
	if m == nil {
		return nil
	}
	loc := m.location()
	out := make([]time.Time, len(m.Time))
	for i, s := range m.Time {
		if t, ok := parseTime(s, modelTimeLayouts, loc); ok {
			out[i] = t
		}
	}
	return out
}

// location returns the zone wall-clock hours are read in. UTCOffsetSeconds
// is only the offset at fetch time, so it is used alone only when the zone
// name is unknown. The repeated hour at a fall-back change is ambiguous in
// wall-clock form; callers that need it send offsets.
func (m *ModelHourly) location() *time.Location {
	if m.Timezone != "" {
		if loc, err := time.LoadLocation(m.Timezone); err == nil {
			return loc
		}
	}
	return time.FixedZone(m.Timezone, m.UTCOffsetSeconds)
}

func parseTime(s string, layouts []string, loc *time.Location) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// valueAt returns values[i], or nil when i is out of range.
func valueAt(values []*float64, i int) *float64 {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}
