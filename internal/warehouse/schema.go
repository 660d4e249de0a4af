package warehouse

// schemaSQL is the complete star schema. Dimension tables carry a UNIQUE
// constraint on their natural key so lookup-or-create stays race-free even
// if concurrent loaders are ever introduced; fact_race is unique over its
// five dimension references, which is what makes reloading the same
// enriched dataset a no-op.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS sailors (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	nation TEXT NOT NULL,
	team TEXT NOT NULL,
	sail TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS times (
	id INTEGER PRIMARY KEY,
	timestamp TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS positions (
	id INTEGER PRIMARY KEY,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	UNIQUE(latitude, longitude)
);

CREATE TABLE IF NOT EXISTS performances (
	id INTEGER PRIMARY KEY,
	heading_30min INTEGER NOT NULL,
	heading_last_report INTEGER NOT NULL,
	heading_24h INTEGER NOT NULL,
	speed_30min REAL NOT NULL,
	speed_last_report REAL NOT NULL,
	speed_24h REAL NOT NULL,
	vmg_30min REAL NOT NULL,
	vmg_last_report REAL NOT NULL,
	vmg_24h REAL NOT NULL,
	dist_30min REAL NOT NULL,
	dist_last_report REAL NOT NULL,
	dist_24h REAL NOT NULL,
	dtf REAL NOT NULL,
	dtl REAL NOT NULL,
	UNIQUE(heading_30min, heading_last_report, heading_24h,
	       speed_30min, speed_last_report, speed_24h,
	       vmg_30min, vmg_last_report, vmg_24h,
	       dist_30min, dist_last_report, dist_24h,
	       dtf, dtl)
);

CREATE TABLE IF NOT EXISTS conditions (
	id INTEGER PRIMARY KEY,
	wind_speed REAL NOT NULL,
	wind_direction REAL NOT NULL,
	wind_gust REAL NOT NULL,
	UNIQUE(wind_speed, wind_direction, wind_gust)
);

CREATE TABLE IF NOT EXISTS fact_race (
	id INTEGER PRIMARY KEY,
	sailor_id INTEGER NOT NULL REFERENCES sailors(id),
	time_id INTEGER NOT NULL REFERENCES times(id),
	position_id INTEGER NOT NULL REFERENCES positions(id),
	performance_id INTEGER NOT NULL REFERENCES performances(id),
	conditions_id INTEGER NOT NULL REFERENCES conditions(id),
	ranking INTEGER NOT NULL,
	UNIQUE(sailor_id, time_id, position_id, performance_id, conditions_id)
);
`
