package domain

import (
	"math"
	"time"
)

const (
	mmPerInch = 25.4
	cmPerInch = 2.54

	stationProvider = "Meteostat"
	modelProvider   = "Open-Meteo model"

	defaultTimezone = "UTC"
)

// Config holds the reconciliation heuristics. The snow ratio and veto
// temperature are rules of thumb, kept configurable.
type Config struct {
	// SnowRatio converts liquid-equivalent depth to fresh snow depth.
	SnowRatio float64
	// SnowVetoTempF zeroes station snow estimates for hours warmer than this.
	SnowVetoTempF float64
	// StaleAfter flags a station series as stale.
	StaleAfter time.Duration
	// VeryStaleAfter abandons the station source for the model.
	VeryStaleAfter time.Duration
	// RowTolerance is how far a station row may sit from its slot.
	RowTolerance time.Duration
}

// DefaultConfig returns the standard heuristics: 10:1 snow ratio, 35°F veto,
// stale after 3h, fall back after 6h, rows matched within 5 minutes.
func DefaultConfig() Config {
	return Config{
		SnowRatio:      10,
		SnowVetoTempF:  35,
		StaleAfter:     180 * time.Minute,
		VeryStaleAfter: 360 * time.Minute,
		RowTolerance:   5 * time.Minute,
	}
}

// Reconciler builds RecentPrecipSeries values. It holds no mutable state and
// is safe for concurrent use.
type Reconciler struct {
	cfg Config
}

// NewReconciler creates a Reconciler. Zero durations and snow ratio take
// their defaults. SnowVetoTempF is used as given, since 0°F is a valid
// threshold; start from DefaultConfig to get 35°F.
func NewReconciler(cfg Config) *Reconciler {
	def := DefaultConfig()
	if cfg.SnowRatio <= 0 {
		cfg.SnowRatio = def.SnowRatio
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.VeryStaleAfter <= 0 {
		cfg.VeryStaleAfter = def.VeryStaleAfter
	}
	if cfg.RowTolerance <= 0 {
		cfg.RowTolerance = def.RowTolerance
	}
	return &Reconciler{cfg: cfg}
}

// Build reconciles the two sources into one series as of now. The station
// payload may be nil. It returns nil when the model payload is nil or neither
// source yields a usable series.
func (r *Reconciler) Build(station *StationPayload, model *ModelHourly, now time.Time) *RecentPrecipSeries {
	if model == nil {
		return nil
	}
	now = now.UTC()

	var fallback flagSet
	if obs := station.observations(); len(obs) > 0 {
		if asOf, ok := latestPrecipTime(obs); ok {
			lag := lagMinutes(asOf, now)
			if lag <= int(r.cfg.VeryStaleAfter/time.Minute) {
				return r.buildFromStation(station, obs, model, asOf, now)
			}
			fallback = fallback.with(FlagVeryStale)
		}
	}
	return r.buildFromModel(model, now, fallback)
}

// latestPrecipTime returns the time of the last observation with a
// precipitation value.
func latestPrecipTime(obs []observation) (time.Time, bool) {
	for i := len(obs) - 1; i >= 0; i-- {
		if obs[i].prcp != nil {
			return obs[i].time, true
		}
	}
	return time.Time{}, false
}

func (r *Reconciler) buildFromStation(station *StationPayload, obs []observation, model *ModelHourly, asOf, now time.Time) *RecentPrecipSeries {
	flags := flagSet(0).with(FlagUnitConverted)
	lag := lagMinutes(asOf, now)
	if lag >= int(r.cfg.StaleAfter/time.Minute) {
		flags = flags.with(FlagStale)
	}

	obsTimes := make([]time.Time, len(obs))
	for i, o := range obs {
		obsTimes[i] = o.time
	}
	modelTimes := model.hours()

	slots := hourSlots(asOf)
	series := make([]HourlySample, len(slots))
	for h, slot := range slots {
		idx := nearestIndex(obsTimes, slot, r.cfg.RowTolerance)
		if idx < 0 || obs[idx].prcp == nil {
			series[h] = absentSample(slot)
			continue
		}
		rainIn := round(*obs[idx].prcp/mmPerInch, 3)

		snowIn := 0.0
		if idx > 0 && obs[idx].snow != nil && obs[idx-1].snow != nil {
			if delta := *obs[idx].snow - *obs[idx-1].snow; delta > 0 {
				snowIn = round(delta/mmPerInch/r.cfg.SnowRatio, 3)
				if snowIn > 0 {
					flags = flags.with(FlagSnowDensityAssumed)
				}
				if r.tooWarmForSnow(model, modelTimes, slot) {
					snowIn = 0
				}
			}
		}
		series[h] = presentSample(slot, rainIn, snowIn)
	}

	present := countPresent(series)
	if present < SeriesHours {
		flags = flags.with(FlagPartial)
	}

	return &RecentPrecipSeries{
		FullSeries:    series,
		AsOf:          asOf,
		LagMinutes:    lag,
		Method:        MethodStation,
		Source:        stationSource(station),
		QualityFlags:  flags.flags(),
		ExpectedHours: SeriesHours,
		ReportedHours: present,
		MissingHours:  SeriesHours - present,
		Timezone:      timezoneOf(model),
	}
}

// tooWarmForSnow applies the temperature veto using the model hour nearest
// to slot.
func (r *Reconciler) tooWarmForSnow(model *ModelHourly, modelTimes []time.Time, slot time.Time) bool {
	idx := NearestHourIndex(modelTimes, slot)
	if idx < 0 {
		return false
	}
	temp := valueAt(model.Temperature, idx)
	return temp != nil && *temp > r.cfg.SnowVetoTempF
}

func stationSource(station *StationPayload) Source {
	src := Source{Provider: stationProvider}
	st, ok := station.nearestStation()
	if !ok {
		return src
	}
	src.StationID = st.ID
	src.StationName = st.Name
	if st.Distance != nil {
		km := math.Round(*st.Distance/100) / 10
		src.DistanceKm = &km
	}
	return src
}

func (r *Reconciler) buildFromModel(model *ModelHourly, now time.Time, flags flagSet) *RecentPrecipSeries {
	modelTimes := model.hours()
	if len(modelTimes) == 0 {
		return nil
	}
	asOf, ok := latestModelHour(modelTimes, now)
	if !ok {
		return nil
	}
	flags = flags.with(FlagEstimated)

	slots := hourSlots(asOf)
	series := make([]HourlySample, len(slots))
	for h, slot := range slots {
		idx := NearestHourIndex(modelTimes, slot)
		if idx < 0 || modelTimes[idx].After(now) {
			series[h] = absentSample(slot)
			continue
		}
		rainIn := 0.0
		if p := valueAt(model.Precipitation, idx); p != nil {
			rainIn = round(*p, 3)
		}
		snowIn := 0.0
		if s := valueAt(model.Snowfall, idx); s != nil {
			snowIn = round(*s/cmPerInch, 3)
		}
		series[h] = presentSample(slot, rainIn, snowIn)
	}

	present := countPresent(series)
	if present < SeriesHours {
		flags = flags.with(FlagPartial)
	}

	return &RecentPrecipSeries{
		FullSeries:    series,
		AsOf:          asOf,
		LagMinutes:    lagMinutes(asOf, now),
		Method:        MethodModelFallback,
		Source:        Source{Provider: modelProvider, GridProduct: model.GridProduct},
		QualityFlags:  flags.flags(),
		ExpectedHours: SeriesHours,
		ReportedHours: present,
		MissingHours:  SeriesHours - present,
		Timezone:      timezoneOf(model),
	}
}

// latestModelHour returns the latest model hour at or before now.
func latestModelHour(times []time.Time, now time.Time) (time.Time, bool) {
	var latest time.Time
	for _, t := range times {
		if t.IsZero() || t.After(now) {
			continue
		}
		if t.After(latest) {
			latest = t
		}
	}
	return latest, !latest.IsZero()
}

func timezoneOf(model *ModelHourly) string {
	if model == nil || model.Timezone == "" {
		return defaultTimezone
	}
	return model.Timezone
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
