package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg := Load()
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, StoreGorm, cfg.StoreBackend)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, 5, cfg.RetrievalTopK)
	assert.Equal(t, 1.0, cfg.DefaultTemperature)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.RetrievalEnabled())
	assert.True(t, cfg.IsProduction())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ReadsTypedValues(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("STORE_BACKEND", "Remote")
	t.Setenv("REMOTE_STORE_URL", "http://store.local")
	t.Setenv("REMOTE_STORE_TIMEOUT", "3s")
	t.Setenv("MODEL_SYNC", "true")
	t.Setenv("REPLAY_AUTO_ADVANCE", "1")
	t.Setenv("DEFAULT_TEMPERATURE", "0.25")
	t.Setenv("RAG_TOPK", "not-a-number")
	t.Setenv("CORS_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("PINECONE_API_KEY", "pc")
	t.Setenv("PINECONE_INDEX_HOST", "idx.pinecone.io")

	cfg := Load()
	assert.Equal(t, StoreRemote, cfg.StoreBackend)
	assert.Equal(t, 3*time.Second, cfg.RemoteStoreTimeout)
	assert.True(t, cfg.ModelSync)
	assert.True(t, cfg.ReplayAutoAdvance)
	assert.Equal(t, 0.25, cfg.DefaultTemperature)
	assert.Equal(t, 5, cfg.RetrievalTopK)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.True(t, cfg.RetrievalEnabled())
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := &Config{
		StoreBackend:        StoreGorm,
		DBDriver:            "mysql",
		DatabaseDSN:         "x",
		DefaultTemperature:  2,
		RetrievalTopK:       0,
		ReplayRetryStrategy: "sideways",
	}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"LLM_API_KEY", "DB_DRIVER", "DEFAULT_TEMPERATURE", "RAG_TOPK", "REPLAY_RETRY_STRATEGY"} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_StoreBackends(t *testing.T) {
	base := Config{LLMAPIKey: "k", DefaultTemperature: 1, RetrievalTopK: 5}

	remote := base
	remote.StoreBackend = StoreRemote
	assert.ErrorContains(t, remote.Validate(), "REMOTE_STORE_URL")

	memory := base
	memory.StoreBackend = StoreMemory
	assert.NoError(t, memory.Validate())

	unknown := base
	unknown.StoreBackend = "tape"
	assert.ErrorContains(t, unknown.Validate(), "STORE_BACKEND")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestSetupLoggerWithWriters_FansOut(t *testing.T) {
	var text, js bytes.Buffer
	logger := SetupLoggerWithWriters(&text, &js, slog.LevelInfo)

	logger.Info("replay started", "conversation_id", "c1")
	logger.Debug("hidden")

	assert.Contains(t, text.String(), "replay started")
	assert.NotContains(t, text.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(js.Bytes()), &entry))
	assert.Equal(t, "replay started", entry["msg"])
	assert.Equal(t, "c1", entry["conversation_id"])
}

func TestSetupLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	logger, cleanup := SetupLogger(path, slog.LevelInfo)
	logger.Warn("store slow", "ms", 900)
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"store slow"`))
}
