package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAIWA_CONFIG", "")
	t.Setenv("KAIWA_LLM_PROVIDER", "")
	t.Setenv("KAIWA_MAX_TOKENS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.LLMProvider)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, DefaultSystemPrompt, cfg.SystemPrompt)
	assert.Equal(t, 5*time.Minute, cfg.WriteTimeout)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kaiwa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_port: "9000"
llm_provider: ollama
llm_model: llama3
max_tokens: 1024
write_timeout: 90s
log_level: debug
`), 0644))

	t.Setenv("KAIWA_CONFIG", path)
	t.Setenv("KAIWA_SERVER_PORT", "")
	t.Setenv("KAIWA_LLM_PROVIDER", "")
	t.Setenv("KAIWA_LLM_MODEL", "llama3.1")
	t.Setenv("KAIWA_MAX_TOKENS", "")
	t.Setenv("KAIWA_LOG_LEVEL", "")
	t.Setenv("KAIWA_WRITE_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.ServerPort)
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, "llama3.1", cfg.LLMModel, "environment overrides file")
	assert.Equal(t, 1024, cfg.MaxTokens)
	assert.Equal(t, 90*time.Second, cfg.WriteTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadBadFile(t *testing.T) {
	t.Setenv("KAIWA_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"anthropic with key", Config{LLMProvider: ProviderAnthropic, AnthropicAPIKey: "k", MaxTokens: 10}, nil},
		{"anthropic without key", Config{LLMProvider: ProviderAnthropic, MaxTokens: 10}, ErrMissingCredential},
		{"openai without key", Config{LLMProvider: ProviderOpenAI, MaxTokens: 10}, ErrMissingCredential},
		{"bedrock uses aws chain", Config{LLMProvider: ProviderBedrock, MaxTokens: 10}, nil},
		{"ollama needs no key", Config{LLMProvider: ProviderOllama, MaxTokens: 10}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	assert.Error(t, Config{LLMProvider: "cohere", MaxTokens: 10}.Validate())
	assert.Error(t, Config{LLMProvider: ProviderOllama}.Validate())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("nonsense"))
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("turn persisted", "conversation_id", "abc")

	assert.Contains(t, stderr.String(), "turn persisted")
	assert.NotContains(t, stderr.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "abc", entry["conversation_id"])
}
