// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreGorm   = "gorm"
	StoreRemote = "remote"
	StoreMemory = "memory"
)

// Database drivers for the gorm backend.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	ServerPort  string
	Environment string

	// Conversation storage
	StoreBackend       string
	DBDriver           string
	DatabaseDSN        string
	RemoteStoreURL     string
	RemoteStoreToken   string
	RemoteStoreTimeout time.Duration

	// Model serving
	LLMBaseURL         string
	LLMAPIKey          string
	LLMTimeout         time.Duration
	DefaultModel       string
	DefaultTemperature float64
	SystemPrompt       string
	ModelRegistryFile  string
	ModelSync          bool

	// Retrieval addon
	PineconeAPIKey    string
	PineconeIndexHost string
	PineconeNamespace string
	EmbeddingModel    string
	RetrievalTopK     int

	// Replay
	ReplayAutoAdvance   bool
	ReplayRetryStrategy string

	LogFile            string
	LogLevel           string
	RateLimitPerMinute int
	CORSOrigins        []string
}

// Load reads configuration from environment variables or .env file.
func Load() *Config {
	env := os.Getenv("ENV")
	if strings.ToLower(env) != "production" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found; continuing with environment variables")
		}
	}

	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		Environment: env,

		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", StoreGorm)),
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DatabaseDSN:        getEnv("DATABASE_DSN", "chatreplay.db"),
		RemoteStoreURL:     getEnv("REMOTE_STORE_URL", ""),
		RemoteStoreToken:   getEnv("REMOTE_STORE_TOKEN", ""),
		RemoteStoreTimeout: getEnvAsDuration("REMOTE_STORE_TIMEOUT", 15*time.Second),

		LLMBaseURL:         getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		LLMTimeout:         getEnvAsDuration("LLM_TIMEOUT", 5*time.Minute),
		DefaultModel:       getEnv("DEFAULT_MODEL", "gpt-4o-mini"),
		DefaultTemperature: getEnvAsFloat("DEFAULT_TEMPERATURE", 1.0),
		SystemPrompt:       getEnv("SYSTEM_PROMPT", ""),
		ModelRegistryFile:  getEnv("MODEL_REGISTRY_FILE", "models.yaml"),
		ModelSync:          getEnvAsBool("MODEL_SYNC", false),

		PineconeAPIKey:    getEnv("PINECONE_API_KEY", ""),
		PineconeIndexHost: getEnv("PINECONE_INDEX_HOST", ""),
		PineconeNamespace: getEnv("PINECONE_NAMESPACE", "default"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		RetrievalTopK:     getEnvAsInt("RAG_TOPK", 5),

		ReplayAutoAdvance:   getEnvAsBool("REPLAY_AUTO_ADVANCE", false),
		ReplayRetryStrategy: getEnv("REPLAY_RETRY_STRATEGY", "resend"),

		LogFile:            getEnv("LOG_FILE", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:        getEnvAsList("CORS_ORIGINS", []string{"*"}),
	}
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// RetrievalEnabled reports whether the Pinecone addon is configured.
func (c *Config) RetrievalEnabled() bool {
	return c.PineconeAPIKey != "" && c.PineconeIndexHost != ""
}

// Validate reports every missing or invalid value at once.
func (c *Config) Validate() error {
	var problems []error
	missing := []string{}

	if c.LLMAPIKey == "" {
		missing = append(missing, "LLM_API_KEY")
	}
	switch c.StoreBackend {
	case StoreGorm:
		if c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres {
			problems = append(problems, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver))
		}
		if c.DatabaseDSN == "" {
			missing = append(missing, "DATABASE_DSN")
		}
	case StoreRemote:
		if c.RemoteStoreURL == "" {
			missing = append(missing, "REMOTE_STORE_URL")
		}
	case StoreMemory:
	default:
		problems = append(problems, fmt.Errorf("STORE_BACKEND must be one of gorm, remote, memory; got %q", c.StoreBackend))
	}
	if c.IsProduction() && c.PineconeAPIKey != "" && c.PineconeIndexHost == "" {
		missing = append(missing, "PINECONE_INDEX_HOST")
	}
	if len(missing) > 0 {
		problems = append(problems, fmt.Errorf("missing required environment variables: %v", missing))
	}

	if c.DefaultTemperature < 0 || c.DefaultTemperature > 1 {
		problems = append(problems, fmt.Errorf("DEFAULT_TEMPERATURE must be within [0, 1], got %.2f", c.DefaultTemperature))
	}
	if c.RetrievalTopK < 1 || c.RetrievalTopK > 20 {
		problems = append(problems, fmt.Errorf("RAG_TOPK must be within [1, 20], got %d", c.RetrievalTopK))
	}
	if c.RateLimitPerMinute < 0 {
		problems = append(problems, fmt.Errorf("RATE_LIMIT_PER_MINUTE cannot be negative"))
	}
	switch strings.ToLower(c.ReplayRetryStrategy) {
	case "", "resend", "continue":
	default:
		problems = append(problems, fmt.Errorf("REPLAY_RETRY_STRATEGY must be resend or continue, got %q", c.ReplayRetryStrategy))
	}
	return errors.Join(problems...)
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an env var as an integer, with a fallback.
func getEnvAsInt(key string, defaultValue int) int {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as integer. Using default value.", key)
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as boolean. Using default value.", key)
		return defaultValue
	}
	return boolValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as number. Using default value.", key)
		return defaultValue
	}
	return floatValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strValue)
	if err != nil {
		log.Printf("Warning: could not parse env var %s as duration. Using default value.", key)
		return defaultValue
	}
	return d
}

// getEnvAsList splits a comma-separated env var, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return defaultValue
	}
	out := []string{}
	for _, part := range strings.Split(strValue, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
