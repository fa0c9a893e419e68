// Package config loads application settings from the environment and
// manages the persisted provider configuration document.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/openmeet/ai-router/providers"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Routing       RoutingConfig
	Observability ObservabilityConfig
	Environment   string

	// ProviderConfigPath points at the persisted provider document.
	// When the file is missing, providers seed from the environment.
	ProviderConfigPath string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// RoutingConfig holds routing behavior configuration
type RoutingConfig struct {
	Strategy      string
	HealthTimeout time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8085),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     []string{getEnv("CORS_ORIGIN", "http://localhost:5173")},
		},
		Routing: RoutingConfig{
			Strategy:      getEnv("ROUTING_STRATEGY", "fallback"),
			HealthTimeout: getEnvAsDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
		ProviderConfigPath: getEnv("PROVIDER_CONFIG_PATH", defaultProviderConfigPath()),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func defaultProviderConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "provider_config.json"
	}
	return home + "/.openmeet/provider_config.json"
}

// ProvidersFromEnv builds the provider set from environment variables.
// Hosted providers appear only when their API key is set; local models opt
// in via LOCAL_MODELS_ENABLED.
func ProvidersFromEnv() []providers.ProviderConfig {
	var configs []providers.ProviderConfig

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		configs = append(configs, providers.ProviderConfig{
			Type:         providers.ProviderOpenAI,
			Enabled:      getEnvAsBool("OPENAI_ENABLED", true),
			APIKey:       key,
			BaseURL:      getEnv("OPENAI_BASE_URL", ""),
			Organization: getEnv("OPENAI_ORGANIZATION", ""),
			Priority:     getEnvAsInt("OPENAI_PRIORITY", 50),
			MaxRetries:   getEnvAsInt("OPENAI_MAX_RETRIES", 3),
			Timeout:      getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
		})
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		configs = append(configs, providers.ProviderConfig{
			Type:       providers.ProviderAnthropic,
			Enabled:    getEnvAsBool("ANTHROPIC_ENABLED", true),
			APIKey:     key,
			BaseURL:    getEnv("ANTHROPIC_BASE_URL", ""),
			Priority:   getEnvAsInt("ANTHROPIC_PRIORITY", 60),
			MaxRetries: getEnvAsInt("ANTHROPIC_MAX_RETRIES", 3),
			Timeout:    getEnvAsDuration("ANTHROPIC_TIMEOUT", 60*time.Second),
		})
	}

	if getEnvAsBool("LOCAL_MODELS_ENABLED", false) {
		configs = append(configs, providers.ProviderConfig{
			Type:     providers.ProviderLocal,
			Enabled:  true,
			APIKey:   os.Getenv("HUGGINGFACE_TOKEN"),
			Priority: getEnvAsInt("LOCAL_PRIORITY", 100),
			Timeout:  getEnvAsDuration("LOCAL_TIMEOUT", 300*time.Second),
			Extra: map[string]string{
				"whisper_model": getEnv("LOCAL_WHISPER_MODEL", "whisper-large-v3"),
				"llm_model":     getEnv("LOCAL_LLM_MODEL", "llama-3.1-8b"),
				"quantization":  getEnv("LOCAL_QUANTIZATION", "4bit"),
				"device":        getEnv("LOCAL_DEVICE", "auto"),
				"max_workers":   getEnv("LOCAL_MAX_WORKERS", "2"),
			},
		})
	}

	return configs
}

// DefaultCapabilityAssignments picks the default provider per capability
// from the registered set. Hosted chat and embeddings prefer OpenAI, vision
// prefers Anthropic, transcription prefers local Whisper; each falls back
// to whatever is present.
func DefaultCapabilityAssignments(registered map[providers.ProviderType]bool) map[providers.Capability]providers.ProviderType {
	defaults := make(map[providers.Capability]providers.ProviderType)

	pick := func(c providers.Capability, preference ...providers.ProviderType) {
		for _, pt := range preference {
			if registered[pt] {
				defaults[c] = pt
				return
			}
		}
	}

	pick(providers.CapabilityChat, providers.ProviderOpenAI, providers.ProviderLocal)
	pick(providers.CapabilityEmbedding, providers.ProviderOpenAI, providers.ProviderLocal)
	pick(providers.CapabilityVision, providers.ProviderAnthropic, providers.ProviderOpenAI)
	pick(providers.CapabilityTranscription, providers.ProviderLocal, providers.ProviderOpenAI)

	return defaults
}

// Environment variable helpers

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration syntax ("90s") or a bare number of
// seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
