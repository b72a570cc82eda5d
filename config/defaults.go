package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "bookbot.db")

	// Processor defaults
	v.SetDefault("processor.poll_interval_seconds", 5)
	v.SetDefault("processor.max_jobs_per_cycle", 100)
	v.SetDefault("processor.recovery_limit", 1000)

	// OpenRouter defaults
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini") // Cost-effective default
	v.SetDefault("openrouter.temperature", 0.7)
	v.SetDefault("openrouter.max_tokens", 4000)
	v.SetDefault("openrouter.requests_per_minute", 10)
	v.SetDefault("openrouter.timeout_seconds", 300)
}
