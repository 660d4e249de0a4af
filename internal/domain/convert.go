package domain

import (
	"math"
	"time"
)

// kmhPerKnot is the exact definition of a knot in km/h (1852m nautical mile).
const kmhPerKnot = 1.852

// KmhToKnots converts a wind speed from km/h to knots, rounded to one
// decimal place.
func KmhToKnots(kmh float64) float64 {
	return math.Round(kmh/kmhPerKnot*10) / 10
}

// RoundCoord rounds a coordinate to 4 decimal places, the join-key precision
// shared by both datasets.
func RoundCoord(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// NearestIndex returns the index of the timestamp closest in absolute time
// to target. Ties resolve to the earliest index; returns -1 for an empty
// slice.
func NearestIndex(times []time.Time, target time.Time) int {
	best := -1
	var bestDiff time.Duration
	for i, t := range times {
		diff := target.Sub(t)
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}
	return best
}
