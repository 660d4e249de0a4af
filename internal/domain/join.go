package domain

import "strconv"

// joinKey identifies matching rows across the wind and report datasets.
// Coordinates are formatted at 4 decimal places so the key is exact.
type joinKey struct {
	timeLocal string
	sailor    string
	lat       string
	lon       string
}

func newJoinKey(timeLocal, sailor string, lat, lon float64) joinKey {
	return joinKey{
		timeLocal: timeLocal,
		sailor:    sailor,
		lat:       strconv.FormatFloat(RoundCoord(lat), 'f', 4, 64),
		lon:       strconv.FormatFloat(RoundCoord(lon), 'f', 4, 64),
	}
}

// Enrich inner-joins the wind dataset against the report dataset on
// (local time, sailor, rounded latitude, rounded longitude).
//
// Wind rows with any missing field are dropped first; wind speed and gust
// are converted from km/h to knots. Duplicate keys on either side produce
// the cross-product of matches. Output order follows the wind dataset, so
// the result is deterministic for a given pair of inputs.
func Enrich(wind []WindRow, reports []ReportRow) []EnrichedRow {
	index := make(map[joinKey][]int, len(reports))
	for i, r := range reports {
		k := newJoinKey(r.TimeLocal, r.Sailor, r.Latitude, r.Longitude)
		index[k] = append(index[k], i)
	}

	var out []EnrichedRow
	for _, w := range wind {
		if !w.Complete() {
			continue
		}
		k := newJoinKey(w.TimeLocal, w.Sailor, w.Latitude, w.Longitude)
		for _, i := range index[k] {
			r := reports[i]
			r.Latitude = RoundCoord(r.Latitude)
			r.Longitude = RoundCoord(r.Longitude)
			out = append(out, EnrichedRow{
				ReportRow:     r,
				WindSpeed:     KmhToKnots(*w.WindSpeed),
				WindDirection: *w.WindDirection,
				WindGust:      KmhToKnots(*w.WindGust),
			})
		}
	}
	return out
}
