package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	LLM        LLMConfig
	Resilience ResilienceConfig
	Streaming  StreamingConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Environment  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// LLMConfig holds model provider configuration
type LLMConfig struct {
	Provider    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// ResilienceConfig holds defaults for circuit breakers and retries
type ResilienceConfig struct {
	FailureThreshold  int
	RecoveryTimeout   time.Duration
	HalfOpenSuccesses int
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffFactor     float64
	Jitter            bool
}

// StreamingConfig holds defaults for streaming sessions
type StreamingConfig struct {
	HeartbeatInterval time.Duration
	BufferSize        int
	SessionTimeout    time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8080),
			Host:         getEnvString("HOST", "0.0.0.0"),
			ReadTimeout:  getEnvDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("IDLE_TIMEOUT", 120*time.Second),
			Environment:  getEnvString("ENVIRONMENT", "development"),
		},
		Redis: RedisConfig{
			URL:      getEnvString("REDIS_URL", "redis://localhost:6379"),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		LLM: LLMConfig{
			Provider:    getEnvString("LLM_PROVIDER", "anthropic"),
			APIKey:      getEnvString("LLM_API_KEY", ""),
			Model:       getEnvString("LLM_MODEL", "claude-sonnet-4-20250514"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Resilience: ResilienceConfig{
			FailureThreshold:  getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
			RecoveryTimeout:   getEnvDuration("BREAKER_RECOVERY_TIMEOUT", 60*time.Second),
			HalfOpenSuccesses: getEnvInt("BREAKER_HALF_OPEN_SUCCESSES", 3),
			MaxAttempts:       getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay:      getEnvDuration("RETRY_INITIAL_DELAY", 1*time.Second),
			MaxDelay:          getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
			BackoffFactor:     getEnvFloat("RETRY_BACKOFF_FACTOR", 2.0),
			Jitter:            getEnvBool("RETRY_JITTER", true),
		},
		Streaming: StreamingConfig{
			HeartbeatInterval: getEnvDuration("STREAM_HEARTBEAT_INTERVAL", 15*time.Second),
			BufferSize:        getEnvInt("STREAM_BUFFER_SIZE", 64),
			SessionTimeout:    getEnvDuration("STREAM_SESSION_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Resilience.FailureThreshold <= 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be positive")
	}

	if c.Resilience.MaxAttempts <= 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be positive")
	}

	if c.Resilience.BackoffFactor < 1.0 {
		return fmt.Errorf("RETRY_BACKOFF_FACTOR must be >= 1.0")
	}

	if c.Streaming.HeartbeatInterval <= 0 {
		return fmt.Errorf("STREAM_HEARTBEAT_INTERVAL must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
