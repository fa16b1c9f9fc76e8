package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	return &Config{
		Provider:        ProviderOllama,
		EmbedderModel:   DefaultOllamaEmbedderModel,
		EmbedderVersion: 1,
		OllamaHost:      "http://localhost:11434",

		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "oracle",
		PostgresPassword: "secret",
		PostgresDBName:   "oracle",
		PostgresSSLMode:  "disable",

		NLPBaseURL: "http://localhost:8011",

		ChunkMaxTokens:     400,
		ChunkOverlapTokens: 80,
		ChunkMinTokens:     50,
		PreserveCodeBlocks: true,

		ListenAddr: ":8080",
		RatePerSec: 20,
		RateBurst:  40,

		MaintenanceIntervalMinutes: 360,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateSentinels(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"unknown provider", func(c *Config) { c.Provider = "cloudbrain" }, ErrInvalidProvider},
		{"bad ollama host", func(c *Config) { c.OllamaHost = "localhost:11434" }, ErrInvalidOllamaHost},
		{"empty embedder model", func(c *Config) { c.EmbedderModel = " " }, ErrInvalidEmbedderModel},
		{"zero embedder version", func(c *Config) { c.EmbedderVersion = 0 }, ErrInvalidEmbedderVersion},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"bad ssl mode", func(c *Config) { c.PostgresSSLMode = "maybe" }, ErrInvalidPostgresSSLMode},
		{"bad sidecar url", func(c *Config) { c.NLPBaseURL = "not a url" }, ErrInvalidNLPBaseURL},
		{"bad listen addr", func(c *Config) { c.ListenAddr = "8080" }, ErrInvalidListenAddr},
		{"overlap over budget", func(c *Config) { c.ChunkOverlapTokens = 400 }, ErrInvalidChunking},
		{"negative rate", func(c *Config) { c.RatePerSec = -1 }, ErrInvalidRateLimit},
		{"zero interval", func(c *Config) { c.MaintenanceIntervalMinutes = 0 }, ErrInvalidMaintenanceInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateNilConfig(t *testing.T) {
	var c *Config
	if err := c.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("nil config Validate() = %v, want ErrConfigNil", err)
	}
}

func TestEmptyNLPBaseURLDisablesSidecar(t *testing.T) {
	cfg := validConfig()
	cfg.NLPBaseURL = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty sidecar URL rejected: %v", err)
	}
}

func TestPostgresConnectionStringQuotesPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "has spaces and 'quotes'"

	dsn := cfg.PostgresConnectionString()
	if !strings.Contains(dsn, `password='has spaces and \'quotes\''`) {
		t.Errorf("password not quoted in DSN: %s", dsn)
	}
}

func TestPostgresURLEncodesCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "p@ss/word"

	u := cfg.PostgresURL()
	if !strings.HasPrefix(u, "postgres://") {
		t.Errorf("URL scheme wrong: %s", u)
	}
	if strings.Contains(u, "p@ss/word") {
		t.Errorf("special characters not encoded: %s", u)
	}
}

func TestParseDatabaseURLOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://svc:pw@db.internal:6432/knowledge?sslmode=require")

	cfg := validConfig()
	if err := cfg.parseDatabaseURL(); err != nil {
		t.Fatal(err)
	}
	if cfg.PostgresHost != "db.internal" || cfg.PostgresPort != 6432 {
		t.Errorf("host/port = %s:%d, want db.internal:6432", cfg.PostgresHost, cfg.PostgresPort)
	}
	if cfg.PostgresUser != "svc" || cfg.PostgresPassword != "pw" {
		t.Error("credentials not taken from DATABASE_URL")
	}
	if cfg.PostgresDBName != "knowledge" {
		t.Errorf("db name = %q, want knowledge", cfg.PostgresDBName)
	}
	if cfg.PostgresSSLMode != "require" {
		t.Errorf("ssl mode = %q, want require", cfg.PostgresSSLMode)
	}
}

func TestParseDatabaseURLRejectsWrongScheme(t *testing.T) {
	t.Setenv("DATABASE_URL", "mysql://u:p@h:3306/db")

	cfg := validConfig()
	if err := cfg.parseDatabaseURL(); err == nil {
		t.Error("mysql scheme accepted")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"short", "hunter2"},
		{"long", "my_long_secret_key_123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			masked := maskSecret(tt.secret)
			if len(tt.secret) > 4 && strings.Contains(masked, tt.secret[2:len(tt.secret)-2]) {
				t.Errorf("masked value leaks the secret body: %q", masked)
			}
		})
	}
}

func TestStringMasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super_secret_password"

	if s := cfg.String(); strings.Contains(s, "super_secret_password") {
		t.Errorf("String() leaks the password: %s", s)
	}
}

func TestMaintenanceInterval(t *testing.T) {
	cfg := validConfig()
	cfg.MaintenanceIntervalMinutes = 360
	if got := cfg.MaintenanceInterval(); got != 6*time.Hour {
		t.Errorf("MaintenanceInterval() = %v, want 6h", got)
	}
}
