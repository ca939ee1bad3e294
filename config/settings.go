// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	Remote  RemoteConfig
	Budget  BudgetConfig
	Embed   EmbedConfig
	Session SessionConfig
}

// RemoteConfig holds dispatcher policy for the remote data service.
type RemoteConfig struct {
	RatePerSecond  float64
	RateBurst      int
	BatchCeiling   int
	MaxAttempts    int
	MaxConcurrency int
	CacheTTL       time.Duration
}

// BudgetConfig holds the grounding token budget.
type BudgetConfig struct {
	MaxTokens           int
	ReservedForResponse int
	RelevanceThreshold  float64
}

// EmbedConfig holds the embedding provider selection.
type EmbedConfig struct {
	Provider string
	Model    string
}

// SessionConfig holds session storage configuration.
type SessionConfig struct {
	RecentLimit int
	// SqlitePath enables persistent sessions when non-empty.
	SqlitePath string
}

// New loads settings from environment variables, applying defaults.
// Returns an error when a set variable contains an invalid value.
func New() (Settings, error) {
	rate, err := getEnvFloat64("TABULA_RATE_PER_SECOND", 5)
	if err != nil {
		return Settings{}, err
	}

	burst, err := getEnvInt("TABULA_RATE_BURST", int(rate))
	if err != nil {
		return Settings{}, err
	}

	batchCeiling, err := getEnvInt("TABULA_BATCH_CEILING", 10)
	if err != nil {
		return Settings{}, err
	}

	maxAttempts, err := getEnvInt("TABULA_MAX_ATTEMPTS", 3)
	if err != nil {
		return Settings{}, err
	}

	maxConcurrency, err := getEnvInt("TABULA_MAX_CONCURRENCY", 5)
	if err != nil {
		return Settings{}, err
	}

	cacheTTLSeconds, err := getEnvInt("TABULA_CACHE_TTL_SECONDS", 300)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvInt("TABULA_BUDGET_MAX_TOKENS", 16000)
	if err != nil {
		return Settings{}, err
	}

	reserved, err := getEnvInt("TABULA_BUDGET_RESERVED", 4000)
	if err != nil {
		return Settings{}, err
	}

	threshold, err := getEnvFloat64("TABULA_RELEVANCE_THRESHOLD", 0.15)
	if err != nil {
		return Settings{}, err
	}

	recentLimit, err := getEnvInt("TABULA_RECENT_LIMIT", 20)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		Remote: RemoteConfig{
			RatePerSecond:  rate,
			RateBurst:      burst,
			BatchCeiling:   batchCeiling,
			MaxAttempts:    maxAttempts,
			MaxConcurrency: maxConcurrency,
			CacheTTL:       time.Duration(cacheTTLSeconds) * time.Second,
		},
		Budget: BudgetConfig{
			MaxTokens:           maxTokens,
			ReservedForResponse: reserved,
			RelevanceThreshold:  threshold,
		},
		Embed: EmbedConfig{
			Provider: strings.ToLower(os.Getenv("TABULA_EMBED_PROVIDER")),
			Model:    os.Getenv("TABULA_EMBED_MODEL"),
		},
		Session: SessionConfig{
			RecentLimit: recentLimit,
			SqlitePath:  os.Getenv("TABULA_SESSION_DB"),
		},
	}, nil
}

// MustNew loads settings from environment variables.
// Panics when a set variable contains an invalid value.
// Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
