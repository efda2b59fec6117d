// Package config holds process configuration for the deal monitor. Values
// come from environment variables with sensible defaults; a .env file is
// loaded by the binary before this package reads the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/domain"
	"github.com/ethan-mcmanus-dev/Flashfood-API-Scraper/internal/flashfood"
)

// DefaultRegions are the polling targets used unless REGIONS narrows them.
var DefaultRegions = []domain.Region{
	{Key: "calgary", Name: "Calgary", Latitude: 51.0447, Longitude: -114.0719, RadiusMeters: 75000, StoreLimit: 50},
	{Key: "vancouver", Name: "Vancouver", Latitude: 49.2827, Longitude: -123.1207, RadiusMeters: 75000, StoreLimit: 50},
	{Key: "toronto", Name: "Toronto", Latitude: 43.6532, Longitude: -79.3832, RadiusMeters: 75000, StoreLimit: 50},
	{Key: "edmonton", Name: "Edmonton", Latitude: 53.5461, Longitude: -113.4938, RadiusMeters: 75000, StoreLimit: 50},
	{Key: "waterloo", Name: "Waterloo/Kitchener", Latitude: 43.4643, Longitude: -80.5204, RadiusMeters: 75000, StoreLimit: 50},
}

// Config is the full runtime configuration of the monitor process.
type Config struct {
	// Marketplace client.
	APIBaseURL string
	APIKey     string

	// Polling.
	PollInterval      time.Duration
	CacheTTL          time.Duration
	RegionConcurrency int
	StoreConcurrency  int
	Regions           []domain.Region

	// Storage.
	PostgresDSN   string
	ClickHouseDSN string
	UseMemory     bool

	// HTTP endpoint serving /ws and /metrics.
	HTTPAddr string

	// Email delivery. Empty SMTPAddr disables real delivery; batches are
	// logged instead.
	SMTPAddr     string
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string
}

// FromEnv builds a Config from the process environment.
func FromEnv() (*Config, error) {
	cfg := &Config{
		APIBaseURL:        getEnv("FLASHFOOD_BASE_URL", flashfood.DefaultBaseURL),
		APIKey:            os.Getenv("FLASHFOOD_API_KEY"),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 300*time.Second),
		CacheTTL:          getEnvDuration("CACHE_TTL", 5*time.Minute),
		RegionConcurrency: getEnvInt("REGION_CONCURRENCY", 2),
		StoreConcurrency:  getEnvInt("STORE_CONCURRENCY", 4),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		ClickHouseDSN:     os.Getenv("CLICKHOUSE_DSN"),
		UseMemory:         getEnvBool("USE_MEMORY", false),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		SMTPAddr:          os.Getenv("SMTP_ADDR"),
		SMTPUsername:      os.Getenv("SMTP_USERNAME"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		EmailFrom:         getEnv("EMAIL_FROM", "notifications@flashfood-tracker.com"),
	}

	regions, err := selectRegions(os.Getenv("REGIONS"))
	if err != nil {
		return nil, err
	}
	cfg.Regions = regions
	return cfg, nil
}

// Validate reports the first fatal configuration error. A failed validation
// must stop the process before the first polling cycle.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("FLASHFOOD_API_KEY is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %v", c.CacheTTL)
	}
	if c.RegionConcurrency <= 0 || c.StoreConcurrency <= 0 {
		return fmt.Errorf("concurrency bounds must be positive, got regions=%d stores=%d",
			c.RegionConcurrency, c.StoreConcurrency)
	}
	if len(c.Regions) == 0 {
		return fmt.Errorf("at least one region is required")
	}
	if !c.UseMemory {
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required unless USE_MEMORY is set")
		}
		if c.ClickHouseDSN == "" {
			return fmt.Errorf("CLICKHOUSE_DSN is required unless USE_MEMORY is set")
		}
	}
	return nil
}

// selectRegions narrows DefaultRegions to the comma-separated keys in raw,
// or returns all defaults when raw is empty.
func selectRegions(raw string) ([]domain.Region, error) {
	if strings.TrimSpace(raw) == "" {
		out := make([]domain.Region, len(DefaultRegions))
		copy(out, DefaultRegions)
		return out, nil
	}

	byKey := make(map[string]domain.Region, len(DefaultRegions))
	for _, r := range DefaultRegions {
		byKey[r.Key] = r
	}

	var out []domain.Region
	for _, key := range strings.Split(raw, ",") {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		r, ok := byKey[key]
		if !ok {
			return nil, fmt.Errorf("unknown region %q", key)
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("REGIONS=%q selects no regions", raw)
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare numbers are seconds.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
