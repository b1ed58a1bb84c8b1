// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config holds all configuration for the application.
type Config struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	StoreDriver   string `mapstructure:"store_driver"`
	DBPath        string `mapstructure:"db_path"`
	MongoURI      string `mapstructure:"mongodb_uri"`
	MongoDatabase string `mapstructure:"mongodb_database"`

	JWTSecret     string `mapstructure:"jwt_secret"`
	SecureCookies bool   `mapstructure:"secure_cookies"`

	GitHubClientID     string `mapstructure:"github_client_id"`
	GitHubClientSecret string `mapstructure:"github_client_secret"`
	GitHubCallbackURL  string `mapstructure:"github_callback_url"`

	MuxTokenID       string        `mapstructure:"mux_token_id"`
	MuxTokenSecret   string        `mapstructure:"mux_token_secret"`
	MuxBaseURL       string        `mapstructure:"mux_base_url"`
	UploadCORSOrigin string        `mapstructure:"upload_cors_origin"`
	PollInterval     time.Duration `mapstructure:"upload_poll_interval"`
	PollAttempts     int           `mapstructure:"upload_poll_attempts"`
	IngestWorkers    int           `mapstructure:"ingest_workers"`
	IngestQueueSize  int           `mapstructure:"ingest_queue_size"`

	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// UploadsEnabled reports whether video provider credentials are present.
func (c *Config) UploadsEnabled() bool {
	return c.MuxTokenID != "" && c.MuxTokenSecret != ""
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Load reads an optional .env file, then the process environment, on top of
// the defaults. Keys are the upper-cased field tags (PORT, JWT_SECRET, ...).
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// AutomaticEnv only consults the environment for keys viper already
	// knows about; bind the ones without defaults explicitly.
	for _, key := range []string{
		"mongodb_uri", "jwt_secret",
		"github_client_id", "github_client_secret",
		"mux_token_id", "mux_token_secret",
	} {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.CORSAllowedOrigins = splitList(cfg.CORSAllowedOrigins)
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")

	v.SetDefault("store_driver", DriverSQLite)
	v.SetDefault("db_path", "data/vind.db")
	v.SetDefault("mongodb_database", "vind")

	v.SetDefault("secure_cookies", false)
	v.SetDefault("github_callback_url", "")

	v.SetDefault("mux_base_url", "https://api.mux.com")
	v.SetDefault("upload_cors_origin", "*")
	v.SetDefault("upload_poll_interval", "10s")
	v.SetDefault("upload_poll_attempts", 30)
	v.SetDefault("ingest_workers", 2)
	v.SetDefault("ingest_queue_size", 64)

	v.SetDefault("cors_allowed_origins", "*")
}

// splitList accepts both a real list and a single comma-separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be set to at least 16 characters"))
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite store"))
		}
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo store"))
		}
		if c.MongoDatabase == "" {
			errs = append(errs, errors.New("MONGODB_DATABASE is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of %s, %s", c.StoreDriver, DriverSQLite, DriverMongo))
	}

	if (c.MuxTokenID == "") != (c.MuxTokenSecret == "") {
		errs = append(errs, errors.New("MUX_TOKEN_ID and MUX_TOKEN_SECRET must be set together"))
	}
	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		errs = append(errs, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("UPLOAD_POLL_INTERVAL must be positive"))
	}
	if c.PollAttempts < 1 {
		errs = append(errs, errors.New("UPLOAD_POLL_ATTEMPTS must be at least 1"))
	}
	if c.IngestWorkers < 1 {
		errs = append(errs, errors.New("INGEST_WORKERS must be at least 1"))
	}
	if c.IngestQueueSize < 1 {
		errs = append(errs, errors.New("INGEST_QUEUE_SIZE must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
