package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	// Stage artifacts.
	ReportFile   string // parsed leaderboard dataset (upstream collaborator output)
	RequestFile  string // fetch-request list derived from the report file
	ChunksDir    string // chunk artifact directory
	ChunkPrefix  string // artifact name prefix
	WindFile     string // consolidated wind dataset
	EnrichedFile string // joined dataset
	DBPath       string // SQLite warehouse

	// Fetch stage tuning.
	WindowSize       int
	FetchConcurrency int
	Cooldown         time.Duration // inter-window pause for API politeness
	FetchTimeout     time.Duration
	FetchAttempts    int
	FetchRetryDelay  time.Duration
	WeatherBaseURL   string
	RaceTimezone     string

	// Optional Kafka sink for enriched rows.
	KafkaBrokers   []string
	KafkaSinkTopic string

	// Observability endpoint; empty disables the HTTP server.
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	windowSize, err := envInt("WINDOW_SIZE", 100)
	if err != nil {
		return nil, err
	}
	concurrency, err := envInt("FETCH_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	attempts, err := envInt("FETCH_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	cooldown, err := envDuration("COOLDOWN_INTERVAL", 60*time.Second)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := envDuration("FETCH_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	retryDelay, err := envDuration("FETCH_RETRY_DELAY", 2*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ReportFile:   envOrDefault("REPORT_FILE", "data/total.csv"),
		RequestFile:  envOrDefault("REQUEST_FILE", "data/fetch_parameters.csv"),
		ChunksDir:    envOrDefault("CHUNKS_DIR", "data/chunks"),
		ChunkPrefix:  envOrDefault("CHUNK_PREFIX", "wind"),
		WindFile:     envOrDefault("WIND_FILE", "data/wind_data.csv"),
		EnrichedFile: envOrDefault("ENRICHED_FILE", "data/dataset.csv"),
		DBPath:       envOrDefault("DB_PATH", "data/race.db"),

		WindowSize:       windowSize,
		FetchConcurrency: concurrency,
		Cooldown:         cooldown,
		FetchTimeout:     fetchTimeout,
		FetchAttempts:    attempts,
		FetchRetryDelay:  retryDelay,
		WeatherBaseURL:   envOrDefault("OPENMETEO_BASE_URL", "https://archive-api.open-meteo.com/v1/archive"),
		RaceTimezone:     envOrDefault("RACE_TIMEZONE", "Europe/Paris"),

		KafkaBrokers:   parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "enriched-race-reports"),

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.WindowSize <= 0 {
		return nil, errors.New("WINDOW_SIZE must be positive")
	}
	if cfg.FetchConcurrency <= 0 {
		return nil, errors.New("FETCH_CONCURRENCY must be positive")
	}
	if cfg.FetchAttempts <= 0 {
		return nil, errors.New("FETCH_ATTEMPTS must be positive")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_BROKERS is set")
	}
	if _, err := timeLocation(cfg.RaceTimezone); err != nil {
		return nil, fmt.Errorf("invalid RACE_TIMEZONE: %w", err)
	}

	return cfg, nil
}

// Location resolves the race time zone. Load validates it, so this only
// fails if the tz database changed underneath a running process.
func (c *Config) Location() (*time.Location, error) {
	return timeLocation(c.RaceTimezone)
}

// KafkaEnabled reports whether the optional enriched-row sink is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func timeLocation(name string) (*time.Location, error) {
	return time.LoadLocation(name)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return v, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
