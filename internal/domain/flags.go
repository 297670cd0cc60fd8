package domain

// QualityFlag annotates how a series was produced.
type QualityFlag string

const (
	FlagUnitConverted      QualityFlag = "unit_converted"
	FlagEstimated          QualityFlag = "estimated"
	FlagStale              QualityFlag = "stale"
	FlagVeryStale          QualityFlag = "very_stale"
	FlagSnowDensityAssumed QualityFlag = "snow_density_assumed"
	FlagPartial            QualityFlag = "partial"
)

// flagOrder is the canonical order flags are reported in.
var flagOrder = []QualityFlag{
	FlagUnitConverted,
	FlagEstimated,
	FlagStale,
	FlagVeryStale,
	FlagSnowDensityAssumed,
	FlagPartial,
}

// QualityFlags is an ordered set of flags with no duplicates.
type QualityFlags []QualityFlag

// Has reports whether f is in the set.
func (q QualityFlags) Has(f QualityFlag) bool {
	for _, x := range q {
		if x == f {
			return true
		}
	}
	return false
}

// flagSet accumulates flags by value, so a partially built set is never
// shared with the series it ends up on.
type flagSet uint8

func (s flagSet) with(f QualityFlag) flagSet {
	for i, x := range flagOrder {
		if x == f {
			return s | 1<<i
		}
	}
	return s
}

func (s flagSet) flags() QualityFlags {
	out := make(QualityFlags, 0, len(flagOrder))
	for i, f := range flagOrder {
		if s&(1<<i) != 0 {
			out = append(out, f)
		}
	}
	return out
}
