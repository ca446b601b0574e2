// File: internal/services/retrieval/config.go
package retrieval

import (
	"fmt"
	"time"
)

type Config struct {
	// Pinecone index
	APIKey    string
	IndexHost string
	Namespace string

	// Embedding model served by the OpenAI-compatible backend
	EmbeddingModel string

	TopK       int
	MaxChars   int
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("PINECONE_API_KEY is required")
	}
	if c.IndexHost == "" {
		return fmt.Errorf("PINECONE_INDEX_HOST is required")
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("EMBEDDING_MODEL is required")
	}
	if c.TopK <= 0 || c.TopK > 20 {
		return fmt.Errorf("top_k must be between 1 and 20")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Namespace:      "default",
		EmbeddingModel: "text-embedding-3-small",
		TopK:           5,
		MaxChars:       6000,
		Timeout:        30 * time.Second,
		MaxRetries:     2,
		RetryDelay:     500 * time.Millisecond,
	}
}
