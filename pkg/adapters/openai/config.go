package openai

import (
	"fmt"
	"os"
)

// Config holds the OpenAI-compatible endpoint settings. BaseURL makes the
// adapter work against any compatible gateway, not just the hosted API.
type Config struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	OrgID   string `yaml:"org_id"`
}

// NewConfigFromEnv builds a config from OPENAI_* environment variables.
func NewConfigFromEnv() (*Config, error) {
	cfg := &Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:   os.Getenv("OPENAI_MODEL"),
		OrgID:   os.Getenv("OPENAI_ORG_ID"),
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the required settings.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("openai: API key is required")
	}
	if c.Model == "" {
		return fmt.Errorf("openai: model is required")
	}
	return nil
}
