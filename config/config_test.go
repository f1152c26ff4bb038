package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Auth.Secret = "secret"
	return cfg
}

func TestDefaultConfigIsValidOnceSecretIsSet(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if err := DefaultConfig().Validate(); err == nil || !strings.Contains(err.Error(), "jwt secret") {
		t.Fatalf("expected jwt secret error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown driver",
			mutate:  func(cfg *Config) { cfg.DB.Driver = "mysql" },
			wantErr: "database driver",
		},
		{
			name:    "empty dsn",
			mutate:  func(cfg *Config) { cfg.DB.DSN = "" },
			wantErr: "DSN",
		},
		{
			name:    "unknown storage backend",
			mutate:  func(cfg *Config) { cfg.Storage.Backend = "gcs" },
			wantErr: "storage backend",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(cfg *Config) { cfg.Storage.Backend = "s3" },
			wantErr: "S3 bucket",
		},
		{
			name:    "bad log level",
			mutate:  func(cfg *Config) { cfg.Log.Level = "loud" },
			wantErr: "log level",
		},
		{
			name:    "bad log format",
			mutate:  func(cfg *Config) { cfg.Log.Format = "xml" },
			wantErr: "log format",
		},
		{
			name:    "zero scrape limit",
			mutate:  func(cfg *Config) { cfg.Enrich.ScrapeLimit = 0 },
			wantErr: "scrape limit",
		},
		{
			name:    "negative timeout",
			mutate:  func(cfg *Config) { cfg.Scraper.Timeout = -1 * time.Second },
			wantErr: "timeout",
		},
		{
			name:    "negative delay",
			mutate:  func(cfg *Config) { cfg.Enrich.GenerateDelay = -time.Second },
			wantErr: "delays",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":                "9090",
		"DB_HOST":             "db.internal",
		"DB_PASSWORD":         "pw",
		"STORAGE_BACKEND":     "s3",
		"S3_BUCKET":           "csvs",
		"S3_USE_PATH_STYLE":   "true",
		"JWT_SECRET":          "from-env",
		"SCRAPE_DELAY":        "250ms",
		"GENERATE_RATE_LIMIT": "3",
		"LOG_FORMAT":          "text",
	}
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("apply env: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.DB.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.DB.Driver)
	}
	wantDSN := "host=db.internal port=5432 user=enricher password=pw dbname=enricher sslmode=disable"
	if cfg.DB.DSN != wantDSN {
		t.Errorf("dsn = %q, want %q", cfg.DB.DSN, wantDSN)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.S3.Bucket != "csvs" || !cfg.Storage.S3.UsePathStyle {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Errorf("secret = %q", cfg.Auth.Secret)
	}
	if cfg.Enrich.ScrapeDelay != 250*time.Millisecond || cfg.Enrich.GenerateRateLimit != 3 {
		t.Errorf("enrich = %+v", cfg.Enrich)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("log format = %q", cfg.Log.Format)
	}
	// Untouched values keep their defaults
	if cfg.Enrich.MaxTokens != 8000 {
		t.Errorf("max tokens = %d", cfg.Enrich.MaxTokens)
	}
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	env := map[string]string{"SCRAPE_LIMIT": "lots", "SCRAPE_DELAY": "soon"}
	err := DefaultConfig().ApplyEnv(func(k string) string { return env[k] })
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"SCRAPE_LIMIT", "SCRAPE_DELAY"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "enricher.yaml")
	content := `
server:
  addr: ":7000"
db:
  driver: postgres
  dsn: postgres://localhost/enricher
auth:
  jwt_secret: yaml-secret
  cache_ttl: 30s
enrich:
  scrape_limit: 25
  generate_delay: 2s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7000" || cfg.DB.Driver != "postgres" || cfg.Auth.Secret != "yaml-secret" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Auth.CacheTTL != 30*time.Second || cfg.Enrich.GenerateDelay != 2*time.Second || cfg.Enrich.ScrapeLimit != 25 {
		t.Errorf("durations or limits not decoded: %+v %+v", cfg.Auth, cfg.Enrich)
	}
	// Sections absent from the file keep defaults
	if cfg.Enrich.GenerateRateLimit != 10 || cfg.Storage.Backend != "fs" {
		t.Errorf("defaults lost: %+v %+v", cfg.Enrich, cfg.Storage)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"key":"value"`) {
		t.Errorf("unexpected log output: %s", out)
	}
}
