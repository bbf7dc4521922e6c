// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/bathroom-buddy/internal/places"
)

// Database drivers accepted by db.driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Places    PlacesConfig    `mapstructure:"places"`
	DB        DBConfig        `mapstructure:"db"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig configures password hashing and session tokens.
type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
	CookieName      string `mapstructure:"cookie_name"`
	CookieSecure    bool   `mapstructure:"cookie_secure"`
	BcryptCost      int    `mapstructure:"bcrypt_cost"`
}

// PlacesConfig configures the places provider and the search pipeline.
type PlacesConfig struct {
	APIKey         string   `mapstructure:"api_key"`
	GeocodeURL     string   `mapstructure:"geocode_url"`
	NearbyURL      string   `mapstructure:"nearby_url"`
	DetailsURL     string   `mapstructure:"details_url"`
	Keyword        string   `mapstructure:"keyword"`
	Mode           string   `mapstructure:"mode"`
	RadiusMeters   int      `mapstructure:"radius_meters"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	DetailFields   []string `mapstructure:"detail_fields"`
}

// DBConfig selects and tunes the persistence backend.
type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// RateLimitConfig throttles searches per user.
type RateLimitConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SearchRPS   float64 `mapstructure:"search_rps"`
	SearchBurst int     `mapstructure:"search_burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig names the service in traces.
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

// Load builds a Config from disk/environment. With an empty path it looks for
// bathroombuddy.yaml in the working directory, /etc/bathroombuddy and
// $HOME/.bathroombuddy, and carries on with defaults when none exists.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BUDDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("bathroombuddy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/bathroombuddy/")
		v.AddConfigPath("$HOME/.bathroombuddy")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_minutes", 1440)
	v.SetDefault("auth.cookie_name", "buddy_session")
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.bcrypt_cost", 0)
	v.SetDefault("places.api_key", "")
	v.SetDefault("places.geocode_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("places.nearby_url", "https://maps.googleapis.com/maps/api/place/nearbysearch/json")
	v.SetDefault("places.details_url", "https://maps.googleapis.com/maps/api/place/details/json")
	v.SetDefault("places.keyword", "food store")
	v.SetDefault("places.mode", "distance")
	v.SetDefault("places.radius_meters", places.DefaultRadiusMeters)
	v.SetDefault("places.timeout_seconds", 10)
	v.SetDefault("places.detail_fields", places.DefaultDetailFields)
	v.SetDefault("db.driver", DriverMemory)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.sqlite_path", "bathroom_buddy.db")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.search_rps", 1.0)
	v.SetDefault("ratelimit.search_burst", 5)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("telemetry.service_name", "bathroom-buddy")
	v.SetDefault("telemetry.service_version", "dev")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be > 0")
	}
	if c.Places.APIKey == "" {
		return fmt.Errorf("places.api_key must be set")
	}
	if c.Places.TimeoutSeconds <= 0 {
		return fmt.Errorf("places.timeout_seconds must be > 0")
	}
	if _, err := c.SearchMode(); err != nil {
		return fmt.Errorf("places.mode: %w", err)
	}
	switch c.DB.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.driver is postgres")
		}
	case DriverSQLite:
		if c.DB.SQLitePath == "" {
			return fmt.Errorf("db.sqlite_path must be set when db.driver is sqlite")
		}
	default:
		return fmt.Errorf("db.driver must be one of memory, postgres, sqlite; got %q", c.DB.Driver)
	}
	if c.RateLimit.Enabled && c.RateLimit.SearchRPS <= 0 {
		return fmt.Errorf("ratelimit.search_rps must be > 0 when rate limiting is enabled")
	}
	return nil
}

// SearchMode converts places.mode and places.radius_meters into a places.Mode.
func (c Config) SearchMode() (places.Mode, error) {
	return places.ParseMode(c.Places.Mode, c.Places.RadiusMeters)
}

// PlacesTimeout is the per-call timeout for provider requests.
func (c Config) PlacesTimeout() time.Duration {
	return time.Duration(c.Places.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds each inbound HTTP request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// TokenTTL is the lifetime of session tokens.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}
