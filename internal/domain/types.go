package domain

// FetchRequest is the join-key projection of a report row: the fields needed
// to fetch and later re-associate a weather observation.
type FetchRequest struct {
	TimeLocal string  `json:"time_local"` // race-local timestamp, kept verbatim as the join key
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Sailor    string  `json:"sailor"`
}

// Observation is one hourly wind reading from the archive, in km/h.
type Observation struct {
	WindSpeed     float64 `json:"wind_speed"`
	WindDirection float64 `json:"wind_direction"`
	WindGust      float64 `json:"wind_gust"`
}

// FetchStatus classifies the outcome of a weather fetch.
type FetchStatus int

const (
	// FetchOK means an observation was selected from the hourly series.
	FetchOK FetchStatus = iota
	// FetchNoData means the archive responded with an empty hourly series.
	FetchNoData
	// FetchFailed means all retry attempts were exhausted.
	FetchFailed
)

// String returns the status label used in logs and metrics.
func (s FetchStatus) String() string {
	switch s {
	case FetchOK:
		return "ok"
	case FetchNoData:
		return "no_data"
	case FetchFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FetchResult carries a fetch outcome. Obs is only meaningful when Status is
// FetchOK; NoData and Failed both surface downstream as null wind fields.
type FetchResult struct {
	Status FetchStatus
	Obs    Observation
}

// WindRow is a fetch request with its fetched observation attached.
// Nil wind fields mean the fetch yielded no usable data.
type WindRow struct {
	FetchRequest
	WindSpeed     *float64
	WindDirection *float64
	WindGust      *float64
}

// Complete reports whether all three wind fields are present. Incomplete
// rows never participate in the join.
func (w WindRow) Complete() bool {
	return w.WindSpeed != nil && w.WindDirection != nil && w.WindGust != nil
}

// ReportRow is one competitor entry from a parsed leaderboard snapshot.
// Immutable once produced by the upstream parser.
type ReportRow struct {
	TimeLocal string  `json:"time_local"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Sailor    string  `json:"sailor"`
	Nation    string  `json:"nation"`
	Team      string  `json:"team"`
	Sail      string  `json:"sail"`
	Ranking   int     `json:"ranking"`

	Heading30Min      int `json:"heading_30min"`
	HeadingLastReport int `json:"heading_last_report"`
	Heading24H        int `json:"heading_24h"`

	Speed30Min      float64 `json:"speed_30min"`
	SpeedLastReport float64 `json:"speed_last_report"`
	Speed24H        float64 `json:"speed_24h"`

	VMG30Min      float64 `json:"vmg_30min"`
	VMGLastReport float64 `json:"vmg_last_report"`
	VMG24H        float64 `json:"vmg_24h"`

	Dist30Min      float64 `json:"dist_30min"`
	DistLastReport float64 `json:"dist_last_report"`
	Dist24H        float64 `json:"dist_24h"`

	DTF float64 `json:"dtf"` // distance to finish
	DTL float64 `json:"dtl"` // distance to leader
}

// Request projects the report row onto its fetch-request fields.
func (r ReportRow) Request() FetchRequest {
	return FetchRequest{
		TimeLocal: r.TimeLocal,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Sailor:    r.Sailor,
	}
}

// EnrichedRow is the inner join of a complete wind row and a report row.
// Coordinates are rounded to join precision; wind speed and gust are in
// knots, wind direction in degrees.
type EnrichedRow struct {
	ReportRow
	WindSpeed     float64 `json:"wind_speed"`
	WindDirection float64 `json:"wind_direction"`
	WindGust      float64 `json:"wind_gust"`
}
