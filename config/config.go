// Package config manages the bookbot configuration: a TOML file loaded
// through Viper with environment overrides.
package config

// Config represents the core bookbot configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Processor  ProcessorConfig  `mapstructure:"processor"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ProcessorConfig configures the background job processor
type ProcessorConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"` // How often to sweep for eligible jobs (default: 5)
	MaxJobsPerCycle     int `mapstructure:"max_jobs_per_cycle"`    // Claim at most this many jobs per sweep (default: 100)
	RecoveryLimit       int `mapstructure:"recovery_limit"`        // Max orphaned jobs finalized at startup (default: 1000)
}

// OpenRouterConfig configures the text generation client
type OpenRouterConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	Model             string  `mapstructure:"model"`
	Temperature       float64 `mapstructure:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"` // Rate limit on generation calls
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
}
