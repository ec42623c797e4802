package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string   `mapstructure:"REDIS_URL"`
	AMQPURL        string   `mapstructure:"AMQP_URL"`
	AMQPExchange   string   `mapstructure:"AMQP_EXCHANGE"`
	AuthIssuer     string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	MetricsEnabled bool     `mapstructure:"METRICS_ENABLED"`

	RateLimitRPS          float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int     `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeoutSeconds int     `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	BodyLimit             string  `mapstructure:"BODY_LIMIT"`

	// Resource catalogs. Each entry is a name or a numeric range such as
	// "ICU-1..8" which expands to ICU-1 through ICU-8.
	ICUBeds  []string `mapstructure:"ICU_BEDS"`
	WardBeds []string `mapstructure:"WARD_BEDS"`
	ORRooms  []string `mapstructure:"OR_ROOMS"`

	SlotGranularityMinutes int    `mapstructure:"SLOT_GRANULARITY_MINUTES"`
	SlotHorizonDays        int    `mapstructure:"SLOT_HORIZON_DAYS"`
	DefaultOpenTime        string `mapstructure:"DEFAULT_OPEN_TIME"`
	DefaultCloseTime       string `mapstructure:"DEFAULT_CLOSE_TIME"`
	Timezone               string `mapstructure:"TIMEZONE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AMQP_EXCHANGE", "pathway.notifications")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("ICU_BEDS", "ICU-1..8,CCU-1..4")
	v.SetDefault("WARD_BEDS", "W-101..110,W-201..210")
	v.SetDefault("OR_ROOMS", "OR-1..4")
	v.SetDefault("SLOT_GRANULARITY_MINUTES", 30)
	v.SetDefault("SLOT_HORIZON_DAYS", 14)
	v.SetDefault("DEFAULT_OPEN_TIME", "09:00")
	v.SetDefault("DEFAULT_CLOSE_TIME", "17:00")
	v.SetDefault("TIMEZONE", "UTC")

	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"REDIS_URL", "AMQP_URL", "AMQP_EXCHANGE",
		"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
		"CORS_ORIGINS", "METRICS_ENABLED",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT_SECONDS", "BODY_LIMIT",
		"ICU_BEDS", "WARD_BEDS", "OR_ROOMS",
		"SLOT_GRANULARITY_MINUTES", "SLOT_HORIZON_DAYS",
		"DEFAULT_OPEN_TIME", "DEFAULT_CLOSE_TIME", "TIMEZONE",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma-separated env values arrive as a single element.
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.ICUBeds = splitList(v.GetString("ICU_BEDS"))
	cfg.WardBeds = splitList(v.GetString("WARD_BEDS"))
	cfg.ORRooms = splitList(v.GetString("OR_ROOMS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE; slot days and "today" are computed in it.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Catalogs returns the expanded resource names per pool kind.
func (c *Config) Catalogs() (map[string][]string, error) {
	out := make(map[string][]string, 3)
	seen := make(map[string]string)
	for kind, entries := range map[string][]string{
		"icu":            c.ICUBeds,
		"ward":           c.WardBeds,
		"operating_room": c.ORRooms,
	} {
		names, err := ExpandCatalog(entries)
		if err != nil {
			return nil, fmt.Errorf("%s catalog: %w", kind, err)
		}
		for _, n := range names {
			if other, dup := seen[n]; dup {
				return nil, fmt.Errorf("resource %q listed in both %s and %s", n, other, kind)
			}
			seen[n] = kind
		}
		out[kind] = names
	}
	return out, nil
}

// ExpandCatalog expands range entries ("W-101..110") and returns the names in
// input order. Duplicates are rejected.
func ExpandCatalog(entries []string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	add := func(n string) error {
		if seen[n] {
			return fmt.Errorf("duplicate resource %q", n)
		}
		seen[n] = true
		names = append(names, n)
		return nil
	}

	for _, entry := range entries {
		lo, hi, found := strings.Cut(entry, "..")
		if !found {
			if err := add(entry); err != nil {
				return nil, err
			}
			continue
		}

		i := strings.LastIndexFunc(lo, func(r rune) bool { return r < '0' || r > '9' })
		prefix, startStr := lo[:i+1], lo[i+1:]
		start, err := strconv.Atoi(startStr)
		if err != nil {
			return nil, fmt.Errorf("invalid range %q", entry)
		}
		end, err := strconv.Atoi(hi)
		if err != nil || end < start {
			return nil, fmt.Errorf("invalid range %q", entry)
		}
		for n := start; n <= end; n++ {
			if err := add(prefix + strconv.Itoa(n)); err != nil {
				return nil, err
			}
		}
	}
	return names, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.IsProduction() && c.AuthSigningKey != "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is for development only; use AUTH_ISSUER in production")
	}
	if c.AuthIssuer != "" && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ISSUER is set")
	}

	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.RequestTimeoutSeconds)
	}

	if c.SlotGranularityMinutes <= 0 || c.SlotGranularityMinutes > 240 {
		return fmt.Errorf("SLOT_GRANULARITY_MINUTES must be between 1 and 240, got %d", c.SlotGranularityMinutes)
	}
	if c.SlotHorizonDays <= 0 || c.SlotHorizonDays > 90 {
		return fmt.Errorf("SLOT_HORIZON_DAYS must be between 1 and 90, got %d", c.SlotHorizonDays)
	}
	open, err := time.Parse("15:04", c.DefaultOpenTime)
	if err != nil {
		return fmt.Errorf("DEFAULT_OPEN_TIME: %w", err)
	}
	closing, err := time.Parse("15:04", c.DefaultCloseTime)
	if err != nil {
		return fmt.Errorf("DEFAULT_CLOSE_TIME: %w", err)
	}
	if !open.Before(closing) {
		return fmt.Errorf("DEFAULT_OPEN_TIME must be before DEFAULT_CLOSE_TIME")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}

	catalogs, err := c.Catalogs()
	if err != nil {
		return err
	}
	if len(catalogs["icu"]) == 0 {
		return fmt.Errorf("ICU_BEDS must list at least one bed")
	}
	return nil
}
