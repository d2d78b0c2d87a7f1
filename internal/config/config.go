// Package config provides application configuration with multi-source
// priority: environment variables override an optional config file, which
// overrides built-in defaults.
//
// Recognized keys (file or WAYFARE_-prefixed environment, dots become
// underscores — e.g. WAYFARE_MODEL_API_KEY):
//
//	model.api.key        API key for the generative model (required)
//	embedding.api.key    API key for the embedding model (required)
//	model.name           generative model identifier
//	embedding.model      embedding model identifier
//	media.fetch.timeout  batch timeout for media downloads
//	workers              background worker pool size
//	http.addr            HTTP listen address
//	http.rate.burst      per-IP rate limiter burst
//	postgres.*           database connection settings
//
// Error handling uses sentinel errors so callers can branch with errors.Is.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidWorkers indicates the worker pool size is out of range.
	ErrInvalidWorkers = errors.New("invalid worker pool size")

	// ErrInvalidPostgres indicates the PostgreSQL settings are unusable.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")
)

const (
	// DefaultModelName is the fixed default generative model version.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultEmbedderModel is the default embedding model.
	// gemini-embedding-001 supports truncation to 768 dimensions via
	// OutputDimensionality; the pgvector schema uses 768.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultMediaFetchTimeout bounds a whole media download batch.
	DefaultMediaFetchTimeout = 10 * time.Second

	// DefaultWorkers is the default background worker pool size.
	DefaultWorkers = 8

	// MaxWorkers caps the pool to keep provider concurrency sane.
	MaxWorkers = 64
)

// Config stores application configuration.
// Sensitive fields (API keys, password) must never be logged.
type Config struct {
	// Model configuration
	ModelAPIKey     string `mapstructure:"model_api_key"`
	EmbeddingAPIKey string `mapstructure:"embedding_api_key"`
	ModelName       string `mapstructure:"model_name"`
	EmbedderModel   string `mapstructure:"embedding_model"`

	// Media fetching
	MediaFetchTimeout time.Duration `mapstructure:"media_fetch_timeout"`

	// Background workers
	Workers int `mapstructure:"workers"`

	// HTTP server
	HTTPAddr   string `mapstructure:"http_addr"`
	RateBurst  int    `mapstructure:"http_rate_burst"`
	TrustProxy bool   `mapstructure:"http_trust_proxy"`

	// PostgreSQL
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Logging
	LogJSON  bool   `mapstructure:"log_json"`
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from defaults, an optional config file, and the
// environment. configFile may be empty.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedding_model", DefaultEmbedderModel)
	v.SetDefault("media_fetch_timeout", DefaultMediaFetchTimeout)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("http_rate_burst", 60)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "wayfare")
	v.SetDefault("postgres_dbname", "wayfare")
	v.SetDefault("postgres_sslmode", "disable")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("WAYFARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for completeness and sane ranges.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.ModelAPIKey == "" {
		return fmt.Errorf("%w: model.api.key", ErrMissingAPIKey)
	}
	if c.EmbeddingAPIKey == "" {
		return fmt.Errorf("%w: embedding.api.key", ErrMissingAPIKey)
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model.name is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedding.model is empty", ErrInvalidModelName)
	}
	if c.MediaFetchTimeout <= 0 || c.MediaFetchTimeout > 5*time.Minute {
		return fmt.Errorf("%w: media.fetch.timeout %s must be in (0, 5m]", ErrInvalidTimeout, c.MediaFetchTimeout)
	}
	if c.Workers <= 0 || c.Workers > MaxWorkers {
		return fmt.Errorf("%w: %d must be in [1, %d]", ErrInvalidWorkers, c.Workers, MaxWorkers)
	}
	if c.PostgresHost == "" || c.PostgresDBName == "" {
		return fmt.Errorf("%w: host and dbname are required", ErrInvalidPostgres)
	}
	if c.PostgresPort <= 0 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidPostgres, c.PostgresPort)
	}
	return nil
}

// PostgresURL builds a postgres:// connection URL for pgx and golang-migrate.
// The password is URL-escaped; never log the returned string.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	if c.PostgresUser != "" {
		if c.PostgresPassword != "" {
			u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
		} else {
			u.User = url.User(c.PostgresUser)
		}
	}
	q := url.Values{}
	if c.PostgresSSLMode != "" {
		q.Set("sslmode", c.PostgresSSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
