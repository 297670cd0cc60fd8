package domain

import (
	"math"
	"time"
)

// HourTolerance is how far an hourly timestamp may sit from a slot and still
// be considered the same hour.
const HourTolerance = 30 * time.Minute

// NearestHourIndex returns the index of the entry in times closest to target
// within HourTolerance, or -1. On equal distances the earliest index wins.
func NearestHourIndex(times []time.Time, target time.Time) int {
	return nearestIndex(times, target, HourTolerance)
}

// nearestIndex is a linear scan; times need not be sorted. Zero times never
// match.
func nearestIndex(times []time.Time, target time.Time, tolerance time.Duration) int {
	best := -1
	bestDiff := time.Duration(math.MaxInt64)
	for i, t := range times {
		if t.IsZero() {
			continue
		}
		diff := absDuration(t.Sub(target))
		if diff <= tolerance && diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d >= 0 {
		return d
	}
	if d == math.MinInt64 {
		return math.MaxInt64
	}
	return -d
}
