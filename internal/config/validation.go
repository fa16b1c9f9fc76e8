package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// validSSLModes are the PostgreSQL sslmode values pgx accepts.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for consistency. It fails fast:
// the first violated rule is returned as a wrapped sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderOllama:
		if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
			return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidOllamaHost, c.OllamaHost)
		}
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderVersion < 1 {
		return fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidEmbedderVersion, c.EmbedderVersion)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.NLPBaseURL != "" {
		u, err := url.Parse(c.NLPBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidNLPBaseURL, c.NLPBaseURL)
		}
	}

	if !strings.Contains(c.ListenAddr, ":") {
		return fmt.Errorf("%w: %q (expected host:port or :port)", ErrInvalidListenAddr, c.ListenAddr)
	}

	if c.ChunkMaxTokens < 1 {
		return fmt.Errorf("%w: chunk_max_tokens %d (must be >= 1)", ErrInvalidChunking, c.ChunkMaxTokens)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkMaxTokens {
		return fmt.Errorf("%w: chunk_overlap_tokens %d (must be 0 <= overlap < max)", ErrInvalidChunking, c.ChunkOverlapTokens)
	}
	if c.ChunkMinTokens < 0 || c.ChunkMinTokens > c.ChunkMaxTokens {
		return fmt.Errorf("%w: chunk_min_tokens %d (must be 0 <= min <= max)", ErrInvalidChunking, c.ChunkMinTokens)
	}

	if c.RatePerSec <= 0 {
		return fmt.Errorf("%w: rate_per_sec %v (must be > 0)", ErrInvalidRateLimit, c.RatePerSec)
	}
	if c.RateBurst < 1 {
		return fmt.Errorf("%w: rate_burst %d (must be >= 1)", ErrInvalidRateLimit, c.RateBurst)
	}

	if c.MaintenanceIntervalMinutes < 1 {
		return fmt.Errorf("%w: %d minutes (must be >= 1)", ErrInvalidMaintenanceInterval, c.MaintenanceIntervalMinutes)
	}
	return nil
}
