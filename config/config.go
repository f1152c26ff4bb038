// Package config loads service configuration from defaults, an optional
// YAML file, and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docutag/enricher"
	"github.com/docutag/enricher/auth"
	"github.com/docutag/enricher/db"
	"github.com/docutag/enricher/enrich"
	"github.com/docutag/enricher/llm"
	"github.com/docutag/enricher/search"
	"github.com/docutag/enricher/storage"
)

// Config holds the whole service configuration
type Config struct {
	Server  ServerConfig    `yaml:"server"`
	Log     LogConfig       `yaml:"log"`
	DB      db.Config       `yaml:"db"`
	Storage StorageConfig   `yaml:"storage"`
	Auth    auth.Config     `yaml:"auth"`
	Scraper enricher.Config `yaml:"scraper"`
	Enrich  EnrichConfig    `yaml:"enrich"`
	LLM     llm.Config      `yaml:"llm"`
	Search  search.Config   `yaml:"search"`
	Tracing TracingConfig   `yaml:"tracing"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
	CORS bool   `yaml:"cors"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // json or text
}

// StorageConfig selects and configures the CSV blob store
type StorageConfig struct {
	Backend  string           `yaml:"backend"` // fs or s3
	BasePath string           `yaml:"base_path"`
	S3       storage.S3Config `yaml:"s3"`
}

// EnrichConfig holds the stage defaults applied when a request omits them
type EnrichConfig struct {
	ScrapeLimit       int           `yaml:"scrape_limit"`
	ScrapeDelay       time.Duration `yaml:"scrape_delay"`
	GenerateRateLimit int           `yaml:"generate_rate_limit"`
	GenerateDelay     time.Duration `yaml:"generate_delay"`
	MaxTokens         int           `yaml:"max_tokens"`
	DefaultModel      string        `yaml:"default_model"`
}

// TracingConfig toggles OpenTelemetry propagation
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a configuration that runs locally on SQLite and the filesystem
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", CORS: true},
		Log:    LogConfig{Level: "info", Format: "json"},
		DB:     db.Config{Driver: db.DriverSQLite, DSN: "enricher.db"},
		Storage: StorageConfig{
			Backend:  storage.BackendFilesystem,
			BasePath: storage.DefaultConfig().BasePath,
		},
		Auth:    auth.DefaultConfig(),
		Scraper: enricher.DefaultConfig(),
		Enrich: EnrichConfig{
			ScrapeLimit:       enrich.DefaultScrapeLimit,
			ScrapeDelay:       enrich.DefaultScrapeDelay,
			GenerateRateLimit: enrich.DefaultRateLimit,
			GenerateDelay:     enrich.DefaultGenerateDelay,
			MaxTokens:         enrich.DefaultMaxTokens,
			DefaultModel:      enrich.DefaultGenerationModel,
		},
		Search:  search.DefaultConfig(),
		Tracing: TracingConfig{Enabled: true},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty), and the process environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
// Empty variables leave the current value in place.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	env := envReader{getenv: getenv}

	if port := getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	env.setBool("CORS_ENABLED", &c.Server.CORS)
	env.setString("LOG_LEVEL", &c.Log.Level)
	env.setString("LOG_FORMAT", &c.Log.Format)

	env.setString("DB_DRIVER", &c.DB.Driver)
	if host := getenv("DB_HOST"); host != "" {
		c.DB.Driver = db.DriverPostgres
		c.DB.DSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host,
			env.or("DB_PORT", "5432"),
			env.or("DB_USER", "enricher"),
			env.or("DB_PASSWORD", ""),
			env.or("DB_NAME", "enricher"),
			env.or("DB_SSLMODE", "disable"),
		)
	}
	env.setString("DB_DSN", &c.DB.DSN)

	env.setString("STORAGE_BACKEND", &c.Storage.Backend)
	env.setString("STORAGE_BASE_PATH", &c.Storage.BasePath)
	env.setString("S3_ENDPOINT", &c.Storage.S3.Endpoint)
	env.setString("S3_REGION", &c.Storage.S3.Region)
	env.setString("S3_BUCKET", &c.Storage.S3.Bucket)
	env.setString("S3_ACCESS_KEY_ID", &c.Storage.S3.AccessKeyID)
	env.setString("S3_SECRET_ACCESS_KEY", &c.Storage.S3.SecretAccessKey)
	env.setBool("S3_USE_PATH_STYLE", &c.Storage.S3.UsePathStyle)

	env.setString("JWT_SECRET", &c.Auth.Secret)
	env.setString("JWT_ISSUER", &c.Auth.Issuer)

	env.setDuration("SCRAPER_TIMEOUT", &c.Scraper.Timeout)
	env.setString("SCRAPER_USER_AGENT", &c.Scraper.UserAgent)

	env.setInt("SCRAPE_LIMIT", &c.Enrich.ScrapeLimit)
	env.setDuration("SCRAPE_DELAY", &c.Enrich.ScrapeDelay)
	env.setInt("GENERATE_RATE_LIMIT", &c.Enrich.GenerateRateLimit)
	env.setDuration("GENERATE_DELAY", &c.Enrich.GenerateDelay)
	env.setInt("MAX_TOKENS", &c.Enrich.MaxTokens)
	env.setString("DEFAULT_MODEL", &c.Enrich.DefaultModel)

	env.setString("LLM_BASE_URL", &c.LLM.BaseURL)
	env.setString("GOOGLE_SEARCH_URL", &c.Search.GoogleBaseURL)
	env.setBool("TRACING_ENABLED", &c.Tracing.Enabled)

	return errors.Join(env.errs...)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log format must be json or text")
	}
	if c.DB.Driver != db.DriverPostgres && c.DB.Driver != db.DriverSQLite {
		return fmt.Errorf("database driver must be postgres or sqlite, got %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	switch c.Storage.Backend {
	case storage.BackendFilesystem:
		if c.Storage.BasePath == "" {
			return fmt.Errorf("storage base path cannot be empty")
		}
	case storage.BackendS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
	default:
		return fmt.Errorf("storage backend must be fs or s3, got %q", c.Storage.Backend)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth jwt secret cannot be empty")
	}
	if c.Scraper.Timeout <= 0 {
		return fmt.Errorf("scraper timeout must be positive")
	}
	if c.Enrich.ScrapeLimit <= 0 {
		return fmt.Errorf("scrape limit must be positive")
	}
	if c.Enrich.GenerateRateLimit <= 0 {
		return fmt.Errorf("generate rate limit must be positive")
	}
	if c.Enrich.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.Enrich.ScrapeDelay < 0 || c.Enrich.GenerateDelay < 0 {
		return fmt.Errorf("stage delays cannot be negative")
	}
	return nil
}

// NewLogger builds the slog logger described by the log section
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) or(key, fallback string) string {
	if v := e.getenv(key); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) setString(key string, dst *string) {
	if v := e.getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
		return
	}
	*dst = n
}

func (e *envReader) setBool(key string, dst *bool) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
		return
	}
	*dst = b
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s value %q: %w", key, v, err))
		return
	}
	*dst = d
}
