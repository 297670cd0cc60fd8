package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/recent-precip/internal/domain"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Meteostat station source. Disabled when no API key is set.
	MeteostatAPIKey    string
	MeteostatEnabled   bool
	MeteostatTimeout   time.Duration
	MeteostatCacheTTL  time.Duration
	MeteostatCacheSize int
	MeteostatRateLimit float64 // requests per second

	// Open-Meteo model source.
	OpenMeteoTimeout time.Duration
	OpenMeteoModel   string

	// Snapshot publishing. Disabled when no brokers are set.
	KafkaBrokers   []string
	KafkaSinkTopic string
	KafkaEnabled   bool

	// Background refresh of configured locations.
	RefreshInterval time.Duration
	Locations       []domain.Location

	Reconcile domain.Config
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first if present; it never
// overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	meteostatTimeout, err := parseDuration("METEOSTAT_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("METEOSTAT_CACHE_TTL", "30m")
	if err != nil {
		return nil, err
	}
	openMeteoTimeout, err := parseDuration("OPENMETEO_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseDuration("REFRESH_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	rateLimit, err := parsePositiveFloat("METEOSTAT_RATE_LIMIT", "2")
	if err != nil {
		return nil, err
	}
	reconcile, err := parseReconcile()
	if err != nil {
		return nil, err
	}
	locations, err := ParseLocations(os.Getenv("LOCATIONS"))
	if err != nil {
		return nil, err
	}

	apiKey := os.Getenv("METEOSTAT_API_KEY")
	meteostatEnabled := apiKey != ""
	if v := os.Getenv("METEOSTAT_ENABLED"); v != "" {
		meteostatEnabled = v == "true"
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MeteostatAPIKey:    apiKey,
		MeteostatEnabled:   meteostatEnabled,
		MeteostatTimeout:   meteostatTimeout,
		MeteostatCacheTTL:  cacheTTL,
		MeteostatCacheSize: parseCacheSize(),
		MeteostatRateLimit: rateLimit,

		OpenMeteoTimeout: openMeteoTimeout,
		OpenMeteoModel:   os.Getenv("OPENMETEO_MODEL"),

		KafkaBrokers:   brokers,
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "recent-precip"),
		KafkaEnabled:   kafkaEnabled,

		RefreshInterval: refreshInterval,
		Locations:       locations,

		Reconcile: reconcile,
	}

	if cfg.MeteostatEnabled && cfg.MeteostatAPIKey == "" {
		return nil, errors.New("METEOSTAT_ENABLED is true but METEOSTAT_API_KEY is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

func parseReconcile() (domain.Config, error) {
	rc := domain.DefaultConfig()

	ratio, err := parsePositiveFloat("SNOW_RATIO", strconv.FormatFloat(rc.SnowRatio, 'f', -1, 64))
	if err != nil {
		return rc, err
	}
	rc.SnowRatio = ratio

	if v := os.Getenv("SNOW_VETO_TEMP_F"); v != "" {
		temp, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rc, fmt.Errorf("invalid SNOW_VETO_TEMP_F: %w", err)
		}
		rc.SnowVetoTempF = temp
	}

	if rc.StaleAfter, err = parseDuration("STALE_AFTER", rc.StaleAfter.String()); err != nil {
		return rc, err
	}
	if rc.VeryStaleAfter, err = parseDuration("VERY_STALE_AFTER", rc.VeryStaleAfter.String()); err != nil {
		return rc, err
	}
	if rc.VeryStaleAfter < rc.StaleAfter {
		return rc, errors.New("VERY_STALE_AFTER must not be shorter than STALE_AFTER")
	}
	return rc, nil
}

// ParseLocations parses "lat,lon[,label];lat,lon[,label]".
func ParseLocations(s string) ([]domain.Location, error) {
	var locs []domain.Location
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ",", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid LOCATIONS entry %q: want lat,lon[,label]", entry)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid LOCATIONS latitude %q", parts[0])
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("invalid LOCATIONS longitude %q", parts[1])
		}
		loc := domain.Location{Lat: lat, Lon: lon}
		if len(parts) == 3 {
			loc.Label = strings.TrimSpace(parts[2])
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveFloat(key, def string) (float64, error) {
	v, err := strconv.ParseFloat(envOrDefault(key, def), 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func parseCacheSize() int {
	if s := os.Getenv("METEOSTAT_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 256
}
