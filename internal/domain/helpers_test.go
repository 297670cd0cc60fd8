package domain

import (
	"time"
)

const modelLayout = "2006-01-02T15:04"

func f(v float64) *float64 { return &v }

func stationRow(t time.Time, prcp, snow *float64) StationRow {
	return StationRow{Time: t.UTC().Format("2006-01-02 15:04:05"), Prcp: prcp, Snow: snow}
}

// hourlyModel builds an Open-Meteo payload of n UTC hours starting at start,
// every value set by the given functions (nil functions leave the array nil).
func hourlyModel(start time.Time, n int, precip, snowfall, temp func(i int) *float64) *ModelHourly {
	m := &ModelHourly{Timezone: "UTC"}
	for i := range n {
		m.Time = append(m.Time, start.Add(time.Duration(i)*time.Hour).UTC().Format(modelLayout))
	}
	fill := func(fn func(i int) *float64) []*float64 {
		if fn == nil {
			return nil
		}
		out := make([]*float64, n)
		for i := range n {
			out[i] = fn(i)
		}
		return out
	}
	m.Precipitation = fill(precip)
	m.Snowfall = fill(snowfall)
	m.Temperature = fill(temp)
	return m
}

func constant(v float64) func(int) *float64 {
	return func(int) *float64 { return f(v) }
}

// dryModel covers the 72 hours ending at end with zero precipitation and
// the given temperature.
func dryModel(end time.Time, tempF float64) *ModelHourly {
	return hourlyModel(end.Add(-71*time.Hour), 72, constant(0), constant(0), constant(tempF))
}

func presentTimes(s []HourlySample) []time.Time {
	var out []time.Time
	for _, x := range s {
		if x.Present {
			out = append(out, x.Time)
		}
	}
	return out
}
