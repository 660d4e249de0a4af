// Package domain models ocean-race leaderboard reports and their weather
// enrichment.
//
// # Data Source
//
// Report rows originate from timestamped race leaderboard snapshots. An
// upstream parser turns each snapshot spreadsheet into one row per competitor
// carrying position, ranking, and performance metrics at three horizons
// (30 minutes, since last report, 24 hours). The pipeline treats that parsed
// CSV as an opaque, already-validated input.
//
// # Weather Enrichment
//
// Each report row is enriched with the hourly wind observation nearest in
// time to the report, fetched from the Open-Meteo archive API for the row's
// coordinate and calendar day. The archive returns wind speed and gust in
// km/h at 10m height; both are converted to knots before the join.
//
// # Join Keys
//
// The wind dataset and the report dataset are inner-joined on
// (local time string, sailor, latitude, longitude) with coordinates rounded
// to 4 decimal places. Rounding absorbs floating-point representation drift
// between the two sources; the local time string is compared verbatim since
// both sides carry the value unmodified from the request list. Wind rows
// with any missing field are dropped before the join, so an absent
// observation excludes the row rather than defaulting it.
//
// # Fetch Outcomes
//
// A weather fetch is tri-state: OK (an observation was selected), NoData
// (the archive returned an empty hourly series for that day), or Failed
// (retries exhausted). NoData and Failed both degrade to null wind fields in
// the chunk artifact; the distinction exists for logs and metrics only.
package domain
