// Package config bridges Viper configuration and plain environment
// variables for the CLI.
package config

import (
	"os"

	"github.com/spf13/viper"

	"github.com/shelfmatch/shelfmatch/pkg/dedup"
	"github.com/shelfmatch/shelfmatch/pkg/errors"
	"github.com/shelfmatch/shelfmatch/pkg/match"
)

// GetString is a helper to get string values from Viper.
// It checks both OS environment variables and Viper configuration.
func GetString(key string) string {
	osValue := os.Getenv(key)
	viperValue := viper.GetString(key)

	if viperValue == "" && osValue != "" {
		return osValue
	}
	return viperValue
}

// GeminiAPIKey returns the configured Gemini API key. GEMINI_API_KEY wins
// over GOOGLE_API_KEY when both are set.
func GeminiAPIKey() string {
	if key := GetString("GEMINI_API_KEY"); key != "" {
		return key
	}
	return GetString("GOOGLE_API_KEY")
}

// RequireGeminiAPIKey returns the Gemini API key or an error naming the
// environment variables to set.
func RequireGeminiAPIKey() (string, error) {
	key := GeminiAPIKey()
	if key == "" {
		return "", errors.NewAuthenticationError("gemini", "api_key",
			"set GEMINI_API_KEY or GOOGLE_API_KEY", errors.ErrAPIKeyRequired)
	}
	return key, nil
}

// MatchConfig builds the cascade thresholds, overlaying any values from the
// config file or environment on the defaults. Unset keys keep the defaults.
func MatchConfig() match.Config {
	cfg := match.DefaultConfig()
	overlayFloat("match.fuzzy_threshold", &cfg.FuzzyThreshold)
	overlayFloat("match.weight_ratio", &cfg.WeightRatio)
	overlayFloat("match.weight_partial", &cfg.WeightPartial)
	overlayFloat("match.weight_token_sort", &cfg.WeightTokenSort)
	overlayFloat("match.embedding_threshold", &cfg.EmbeddingThreshold)
	overlayFloat("match.category_min_confidence", &cfg.CategoryMinConfidence)
	if v := viper.GetDuration("match.embedding_timeout"); v > 0 {
		cfg.EmbeddingTimeout = v
	}
	if v := viper.GetInt("match.queue_candidates"); v > 0 {
		cfg.QueueCandidates = v
	}
	return cfg
}

// DedupConfig builds the dedup thresholds the same way.
func DedupConfig() dedup.Config {
	cfg := dedup.DefaultConfig()
	overlayFloat("dedup.jaccard_threshold", &cfg.JaccardThreshold)
	if v := viper.GetInt("dedup.workers"); v > 0 {
		cfg.Workers = v
	}
	if v := viper.GetInt("dedup.max_token_bucket"); v > 0 {
		cfg.MaxTokenBucket = v
	}
	return cfg
}

func overlayFloat(key string, dst *float64) {
	if v := viper.GetFloat64(key); v > 0 {
		*dst = v
	}
}
