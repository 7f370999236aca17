// Package config loads kaiwa configuration from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM providers understood by the gateway.
const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// DefaultSystemPrompt asks the assistant for polite, knowledgeable answers in Japanese.
const DefaultSystemPrompt = "あなたは親切で知識豊富なAIアシスタントです。日本語で丁寧に回答してください。"

// ErrMissingCredential is returned by Validate when the selected provider has no API key.
var ErrMissingCredential = errors.New("missing credential")

// Config holds all configuration values.
type Config struct {
	// HTTP server
	ServerPort   string        `yaml:"server_port"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Completion gateway. Model, token limit and system prompt are process-wide.
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	MaxTokens       int    `yaml:"max_tokens"`
	SystemPrompt    string `yaml:"system_prompt"`
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	OllamaHost      string `yaml:"ollama_host"`
	AWSRegion       string `yaml:"aws_region"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// fileConfig mirrors Config for YAML decoding. Values set here are defaults
// that the environment may override.
type fileConfig struct {
	Config   `yaml:",inline"`
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration. When KAIWA_CONFIG names a YAML file it is read
// first; environment variables take precedence over file values.
func Load() (Config, error) {
	var fc fileConfig
	if path := os.Getenv("KAIWA_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	f := fc.Config

	return Config{
		ServerPort:   getEnv("KAIWA_SERVER_PORT", or(f.ServerPort, "8484")),
		WriteTimeout: getDuration("KAIWA_WRITE_TIMEOUT", orDuration(f.WriteTimeout, 5*time.Minute)),

		SurrealDBURL:       getEnv("SURREALDB_URL", or(f.SurrealDBURL, "ws://localhost:8000/rpc")),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", or(f.SurrealDBNamespace, "kaiwa")),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", or(f.SurrealDBDatabase, "chat")),
		SurrealDBUser:      getEnv("SURREALDB_USER", or(f.SurrealDBUser, "root")),
		SurrealDBPass:      getEnv("SURREALDB_PASS", or(f.SurrealDBPass, "root")),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", or(f.SurrealDBAuthLevel, "root")),

		LLMProvider:     strings.ToLower(getEnv("KAIWA_LLM_PROVIDER", or(f.LLMProvider, ProviderAnthropic))),
		LLMModel:        getEnv("KAIWA_LLM_MODEL", or(f.LLMModel, "claude-sonnet-4-20250514")),
		MaxTokens:       getInt("KAIWA_MAX_TOKENS", orInt(f.MaxTokens, 4096)),
		SystemPrompt:    getEnv("KAIWA_SYSTEM_PROMPT", or(f.SystemPrompt, DefaultSystemPrompt)),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OllamaHost:      getEnv("OLLAMA_HOST", or(f.OllamaHost, "http://localhost:11434")),
		AWSRegion:       getEnv("AWS_REGION", or(f.AWSRegion, "us-east-1")),

		LogFile:  getEnv("KAIWA_LOG_FILE", f.LogFile),
		LogLevel: parseLogLevel(getEnv("KAIWA_LOG_LEVEL", or(fc.LogLevel, "INFO"))),
	}, nil
}

// Validate checks that the selected provider can be constructed. It is called
// once at startup so a missing key fails the process, not a request.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("%w: ANTHROPIC_API_KEY environment variable is not defined", ErrMissingCredential)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is not defined", ErrMissingCredential)
		}
	case ProviderBedrock, ProviderOllama:
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func or(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

func orInt(val, fallback int) int {
	if val != 0 {
		return val
	}
	return fallback
}

func orDuration(val, fallback time.Duration) time.Duration {
	if val != 0 {
		return val
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
