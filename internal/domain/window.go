package domain

// Window returns the trailing hours of s with totals and coverage recomputed
// for the window. hours is clamped to [1, len(s.FullSeries)]. It returns nil
// for a nil or empty series. The window shares no memory with s.
func Window(s *RecentPrecipSeries, hours int) *WindowedPrecip {
	if s == nil || len(s.FullSeries) == 0 {
		return nil
	}
	hours = max(1, min(hours, len(s.FullSeries)))

	series := make([]HourlySample, hours)
	for i, sample := range s.FullSeries[len(s.FullSeries)-hours:] {
		series[i] = sample.clone()
	}

	var rain, snow float64
	present := 0
	anySnow := false
	for _, sample := range series {
		if !sample.Present {
			continue
		}
		present++
		if sample.RainIn != nil {
			rain += *sample.RainIn
		}
		if sample.SnowIn != nil && *sample.SnowIn > 0 {
			snow += *sample.SnowIn
			anySnow = true
		}
	}

	w := &WindowedPrecip{
		Hours:         hours,
		Series:        series,
		CoverageStart: series[0].Time,
		CoverageEnd:   series[len(series)-1].Time,
		ExpectedHours: hours,
		ReportedHours: present,
		MissingHours:  hours - present,
		AsOf:          s.AsOf,
		LagMinutes:    s.LagMinutes,
		Method:        s.Method,
		Source:        s.Source,
		QualityFlags:  append(QualityFlags(nil), s.QualityFlags...),
		Timezone:      s.Timezone,
	}
	if present > 0 {
		total := round(rain, 2)
		w.RainTotal = &total
	}
	if anySnow {
		w.SnowTotal = round(snow, 2)
	}
	return w
}
