// Package config loads the service configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the serve-mode configuration.
type Config struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`

	// Workflow optionally points at a custom pipeline definition. Empty
	// means the built-in roleplay pipeline.
	Workflow string `yaml:"workflow"`

	// EncryptionKey enables at-rest tree encryption when set. Base64 of a
	// 32-byte key.
	EncryptionKey string `yaml:"encryption_key"`

	Redis  RedisConfig  `yaml:"redis"`
	OpenAI OpenAIConfig `yaml:"openai"`
}

// RedisConfig selects the durable store. An empty Addr keeps everything in
// memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// OpenAIConfig configures the model endpoint.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	OrgID   string `yaml:"org_id"`
}

// Load reads path (when non-empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Addr:     ":8080",
		LogLevel: "info",
		OpenAI:   OpenAIConfig{Model: "gpt-4o"},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	overrideString(&cfg.Addr, "REVERIE_ADDR")
	overrideString(&cfg.LogLevel, "REVERIE_LOG_LEVEL")
	overrideString(&cfg.Workflow, "REVERIE_WORKFLOW")
	overrideString(&cfg.EncryptionKey, "REVERIE_ENCRYPTION_KEY")
	overrideString(&cfg.Redis.Addr, "REVERIE_REDIS_ADDR")
	overrideString(&cfg.Redis.Password, "REVERIE_REDIS_PASSWORD")
	overrideInt(&cfg.Redis.DB, "REVERIE_REDIS_DB")
	overrideString(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	overrideString(&cfg.OpenAI.Model, "OPENAI_MODEL")
	overrideString(&cfg.OpenAI.OrgID, "OPENAI_ORG_ID")

	return cfg, nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
