// File: internal/services/ai/config.go
package ai

import (
	"fmt"
	"time"
)

type Config struct {
	// OpenAI-compatible model serving endpoint
	APIKey  string
	BaseURL string

	// Streaming deadline for one invocation
	Timeout time.Duration

	// Sent as the system message instead of an empty prompt when set
	DefaultSystemPrompt string
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Timeout: 5 * time.Minute,
	}
}
