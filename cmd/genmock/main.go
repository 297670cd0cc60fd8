// Command genmock generates deterministic upstream payload fixtures for a
// spring snowstorm over Denver: a Meteostat point/hourly response and an
// Open-Meteo hourly block. The pipeline tests and cmd/reconcile read them.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/recent-precip/internal/domain"
)

const (
	stationFile = "meteostat_hourly_240310.json"
	modelFile   = "openmeteo_hourly_240310.json"

	stationHours = 3*24 + 14 // 2024-03-07T00Z through 2024-03-10T13Z
	modelHours   = 5 * 24
	utcOffset    = -6 * 3600 // MDT, in effect at fetch time

	// Storm hours are counted from 2024-03-07T00:00Z.
	stormStart = 54
	stormEnd   = 74
)

var baseDate = time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for the payload fixtures")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	station := stationPayload()
	model := modelPayload()

	if err := writeJSON(filepath.Join(*out, stationFile), station); err != nil {
		return fmt.Errorf("writing station fixture: %w", err)
	}
	log.Printf("wrote station fixture: %d rows", len(station.Data))

	if err := writeJSON(filepath.Join(*out, modelFile), model); err != nil {
		return fmt.Errorf("writing model fixture: %w", err)
	}
	log.Printf("wrote model fixture: %d hours", len(model.Time))
	return nil
}

func inStorm(h int) bool { return h >= stormStart && h <= stormEnd }

// stationPayload drops every 17th row starting at hour 5, leaves precipitation
// null every 23 hours, and builds snow depth by 8 mm per storm hour, melting
// 2 mm per hour otherwise.
func stationPayload() *domain.StationPayload {
	distance := 28450.0
	p := &domain.StationPayload{
		Meta: &domain.StationMeta{Stations: []domain.StationInfo{
			{ID: "72565", Name: "Denver International Airport", Distance: &distance},
		}},
		Data: []domain.StationRow{},
	}

	depth := 0
	for h := range stationHours {
		if inStorm(h) {
			depth += 8
		} else {
			depth = max(0, depth-2)
		}
		if h%17 == 5 {
			continue
		}

		row := domain.StationRow{
			Time: baseDate.Add(time.Duration(h) * time.Hour).Format(time.DateTime),
			Snow: ptr(float64(depth)),
		}
		switch {
		case h%23 == 0:
		case inStorm(h):
			row.Prcp = ptr(float64(3+h%4) / 10)
		default:
			row.Prcp = ptr(0)
		}
		p.Data = append(p.Data, row)
	}
	return p
}

// modelPayload covers the three past days plus two forecast days from local
// midnight in Denver, stamped in UTC the way the Open-Meteo adapter hands
// them on. Storm hours are cold; all others are too warm for snow.
func modelPayload() *domain.ModelHourly {
	m := &domain.ModelHourly{
		Timezone:         "America/Denver",
		UTCOffsetSeconds: utcOffset,
	}
	start := time.Date(2024, time.March, 7, 7, 0, 0, 0, time.UTC) // 00:00 MST

	for i := range modelHours {
		t := start.Add(time.Duration(i) * time.Hour)
		hu := int(t.Sub(baseDate) / time.Hour)

		m.Time = append(m.Time, t.Format(time.RFC3339))
		if inStorm(hu) {
			m.Precipitation = append(m.Precipitation, ptr(float64(12+4*(hu%3))/1000))
			m.Snowfall = append(m.Snowfall, ptr(float64(70+10*(hu%3))/100))
			m.Temperature = append(m.Temperature, ptr(float64(28+hu%3)))
		} else {
			m.Precipitation = append(m.Precipitation, ptr(0))
			m.Snowfall = append(m.Snowfall, ptr(0))
			m.Temperature = append(m.Temperature, ptr(float64(380+5*(hu%24))/10))
		}
	}
	return m
}

func ptr(v float64) *float64 { return &v }

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
