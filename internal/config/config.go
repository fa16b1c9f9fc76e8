// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.oracle/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Embedding: provider, embedder model and version for the vector index
//   - Storage: PostgreSQL connection (see storage.go)
//   - NLP: Thai NLP sidecar endpoint
//   - Chunking: token budgets for the smart chunker
//   - Serve: HTTP listen address, rate limiting, maintenance interval
//
// Security: sensitive data (passwords) is never logged; the config directory
// uses 0750 permissions.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderVersion indicates the embedder version is not positive.
	ErrInvalidEmbedderVersion = errors.New("invalid embedder version")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidNLPBaseURL indicates the NLP sidecar URL is invalid.
	ErrInvalidNLPBaseURL = errors.New("invalid NLP sidecar URL")

	// ErrInvalidListenAddr indicates the serve address is invalid.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrInvalidChunking indicates the chunker token budgets are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidRateLimit indicates the request rate limit is invalid.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidMaintenanceInterval indicates the maintenance interval is invalid.
	ErrInvalidMaintenanceInterval = errors.New("invalid maintenance interval")
)

// Embedding provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

const (
	// DefaultGeminiEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default, but supports
	// truncation to 768 via OutputDimensionality. The pgvector schema uses
	// 768 dimensions; see vector.Dimension.
	DefaultGeminiEmbedderModel = "gemini-embedding-001"

	// DefaultOllamaEmbedderModel is the default local embedder model.
	DefaultOllamaEmbedderModel = "nomic-embed-text"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Embedding provider and model configuration
	Provider        string `mapstructure:"provider" json:"provider"` // "gemini" (default), "ollama"
	EmbedderModel   string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderVersion int    `mapstructure:"embedder_version" json:"embedder_version"` // bump when switching models

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Thai NLP sidecar. Empty disables segmentation; everything falls
	// back to language-agnostic splitting.
	NLPBaseURL string `mapstructure:"nlp_base_url" json:"nlp_base_url"`

	// Chunker token budgets
	ChunkMaxTokens     int  `mapstructure:"chunk_max_tokens" json:"chunk_max_tokens"`
	ChunkOverlapTokens int  `mapstructure:"chunk_overlap_tokens" json:"chunk_overlap_tokens"`
	ChunkMinTokens     int  `mapstructure:"chunk_min_tokens" json:"chunk_min_tokens"`
	PreserveCodeBlocks bool `mapstructure:"preserve_code_blocks" json:"preserve_code_blocks"`

	// Serve configuration
	ListenAddr string  `mapstructure:"listen_addr" json:"listen_addr"`
	RatePerSec float64 `mapstructure:"rate_per_sec" json:"rate_per_sec"`
	RateBurst  int     `mapstructure:"rate_burst" json:"rate_burst"`
	TrustProxy bool    `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)

	// Background maintenance cadence (decay refresh, episodic purge,
	// embedding backfill)
	MaintenanceIntervalMinutes int `mapstructure:"maintenance_interval_minutes" json:"maintenance_interval_minutes"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".oracle")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)
	viper.SetDefault("embedder_version", 1)

	viper.SetDefault("ollama_host", "http://localhost:11434")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "oracle")
	viper.SetDefault("postgres_password", "oracle_dev_password")
	viper.SetDefault("postgres_db_name", "oracle")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("nlp_base_url", "http://localhost:8011")

	viper.SetDefault("chunk_max_tokens", 400)
	viper.SetDefault("chunk_overlap_tokens", 80)
	viper.SetDefault("chunk_min_tokens", 50)
	viper.SetDefault("preserve_code_blocks", true)

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("rate_per_sec", 20.0)
	viper.SetDefault("rate_burst", 40)
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("maintenance_interval_minutes", 360)
}

// bindEnvVariables binds environment overrides explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "ORACLE_PROVIDER")
	mustBind("embedder_model", "ORACLE_EMBEDDER_MODEL")
	mustBind("embedder_version", "ORACLE_EMBEDDER_VERSION")
	mustBind("ollama_host", "ORACLE_OLLAMA_HOST")
	mustBind("nlp_base_url", "ORACLE_NLP_BASE_URL")
	mustBind("listen_addr", "ORACLE_LISTEN_ADDR")
	mustBind("trust_proxy", "ORACLE_TRUST_PROXY")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
	// Validation checks its presence based on the selected provider.
}

// MaintenanceInterval returns the background maintenance interval as a
// duration.
func (c *Config) MaintenanceInterval() time.Duration {
	return time.Duration(c.MaintenanceIntervalMinutes) * time.Minute
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid substring matching against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of eight
// characters or fewer are fully masked; longer ones keep the first and
// last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
