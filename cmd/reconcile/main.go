// Command reconcile builds a recent-precipitation series from saved upstream
// payloads and prints it, or a trailing window of it, as JSON. It runs the
// same reconciler as the service, so captured responses can be replayed.
//
// Usage:
//
//	go run ./cmd/reconcile \
//	  -model data/mock/openmeteo_hourly_240310.json \
//	  -station data/mock/meteostat_hourly_240310.json \
//	  -now 2024-03-10T13:20:00Z \
//	  -hours 24
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/couchcryptid/recent-precip/internal/domain"
)

func main() {
	stationPath := flag.String("station", "", "path to a Meteostat point/hourly JSON response (optional)")
	modelPath := flag.String("model", "", "path to an Open-Meteo hourly JSON block")
	nowFlag := flag.String("now", "", "build time, RFC3339 (default: current time)")
	hours := flag.Int("hours", 0, "print a trailing window of this many hours instead of the full series")
	summary := flag.Bool("summary", false, "print a one-line summary to stderr")
	flag.Parse()

	if *modelPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(os.Stdout, os.Stderr, *stationPath, *modelPath, *nowFlag, *hours, *summary); err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(1)
	}
}

func run(stdout, stderr io.Writer, stationPath, modelPath, nowFlag string, hours int, summary bool) error {
	now := time.Now().UTC()
	if nowFlag != "" {
		t, err := time.Parse(time.RFC3339, nowFlag)
		if err != nil {
			return fmt.Errorf("parse -now: %w", err)
		}
		now = t
	}

	var station *domain.StationPayload
	if stationPath != "" {
		p, err := loadJSON[domain.StationPayload](stationPath)
		if err != nil {
			return fmt.Errorf("load station payload: %w", err)
		}
		station = p
	}

	model, err := loadJSON[domain.ModelHourly](modelPath)
	if err != nil {
		return fmt.Errorf("load model payload: %w", err)
	}

	series := domain.NewReconciler(domain.DefaultConfig()).Build(station, model, now)
	if series == nil {
		return fmt.Errorf("no usable data as of %s", now.Format(time.RFC3339))
	}

	if summary {
		printSummary(stderr, series)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if hours > 0 {
		return enc.Encode(domain.Window(series, hours))
	}
	return enc.Encode(series)
}

func printSummary(w io.Writer, s *domain.RecentPrecipSeries) {
	fmt.Fprintf(w, "method=%s as_of=%s lag=%dm reported=%d/%d flags=%v\n",
		s.Method, s.AsOf.Format(time.RFC3339), s.LagMinutes, s.ReportedHours, s.ExpectedHours, s.QualityFlags)
	for _, h := range []int{6, 12, 24, 48} {
		win := domain.Window(s, h)
		rain := "n/a"
		if win.RainTotal != nil {
			rain = fmt.Sprintf("%.2f", *win.RainTotal)
		}
		fmt.Fprintf(w, "  %2dh rain=%s in snow=%.2f in missing=%d\n", h, rain, win.SnowTotal, win.MissingHours)
	}
}

func loadJSON[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &v, nil
}
