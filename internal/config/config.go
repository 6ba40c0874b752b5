package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Jobs     JobsConfig     `mapstructure:"jobs" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port               int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel           string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig selects the job store backend.
// The memory driver keeps jobs in process and ignores URL.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=memory postgres sqlite"`
	URL    string `mapstructure:"url" validate:"required_unless=Driver memory"`
}

// AuthConfig controls bearer token authentication of the job API.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	// TokenLifetime applies to tokens minted by genqueuectl token.
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string  `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string  `mapstructure:"model_name" validate:"required"`
	Temperature  float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	// RequestsPerSecond caps outbound provider calls; zero disables the limit.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=1"`
}

// JobsConfig tunes the execution controller.
type JobsConfig struct {
	WorkerCount     int           `mapstructure:"worker_count" validate:"gte=1,lte=64"`
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout" validate:"gt=0"`
	MaxTimeout      time.Duration `mapstructure:"max_timeout" validate:"gtefield=DefaultTimeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	Retention       time.Duration `mapstructure:"retention" validate:"gt=0"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval" validate:"gt=0"`
}
