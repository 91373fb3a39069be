// Package config loads service settings from .env, an optional YAML file and the
// environment, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"video-docs-go/internal/acquirer"
	"video-docs-go/internal/extractor"
	"video-docs-go/internal/pipeline"
	"video-docs-go/internal/retry"
	"video-docs-go/internal/transcription"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Server        ServerConfig         `yaml:"server"`
	Transcription transcription.Config `yaml:"transcription"`
	LLM           LLMConfig            `yaml:"llm"`
	Pipeline      pipeline.Options     `yaml:"pipeline"`
	Acquirer      acquirer.YtDlpConfig `yaml:"acquirer"`
	Store         StoreConfig          `yaml:"store"`
	SchemaFile    string               `yaml:"schema_file"`
	Logging       LoggingConfig        `yaml:"logging"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LLMConfig struct {
	Provider string                 `yaml:"provider"`
	OpenAI   extractor.OpenAIConfig `yaml:"openai"`
	Gemini   extractor.GeminiConfig `yaml:"gemini"`
	Retry    retry.Policy           `yaml:"retry"`
}

type StoreConfig struct {
	DatabaseURL string `yaml:"database_url"`
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads .env (if present), then the YAML file at path (if non-empty), then
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Transcription.APIKey, "ASSEMBLYAI_API_KEY")
	setString(&c.Transcription.BaseURL, "ASSEMBLYAI_BASE_URL")
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.LLM.OpenAI.Model, "OPENAI_MODEL")
	setString(&c.LLM.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.LLM.Gemini.Model, "GEMINI_MODEL")
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.Gemini.APIKeys = splitList(v)
	}
	setString(&c.Store.DatabaseURL, "DATABASE_URL")
	setString(&c.Store.SupabaseURL, "SUPABASE_URL")
	setString(&c.Store.SupabaseKey, "SUPABASE_KEY")
	setString(&c.Server.Port, "PORT")
	setString(&c.SchemaFile, "SCHEMA_FILE")
	setString(&c.Acquirer.Path, "YTDLP_PATH")
	setString(&c.Acquirer.WorkDir, "WORK_DIR")
	setString(&c.Acquirer.LocalRoot, "LOCAL_MEDIA_ROOT")
	setString(&c.Logging.Level, "LOG_LEVEL")

	if err := setInt(&c.LLM.OpenAI.MaxTokens, "OPENAI_MAX_TOKENS"); err != nil {
		return err
	}
	if err := setInt(&c.Pipeline.MaxChunkTokens, "MAX_CHUNK_TOKENS"); err != nil {
		return err
	}
	if err := setInt(&c.Pipeline.ChunkConcurrency, "CHUNK_CONCURRENCY"); err != nil {
		return err
	}
	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OPENAI_TEMPERATURE: %w", err)
		}
		c.LLM.OpenAI.Temperature = f
	}
	return nil
}

// Validate checks required settings and fills defaults.
func (c *Config) Validate() error {
	if c.Transcription.APIKey == "" {
		return fmt.Errorf("transcription.api_key (ASSEMBLYAI_API_KEY) is required")
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("llm.openai.api_key (OPENAI_API_KEY) is required")
		}
	case ProviderGemini:
		if len(c.LLM.Gemini.APIKeys) == 0 {
			return fmt.Errorf("llm.gemini.api_keys (GEMINI_API_KEY) is required")
		}
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if (c.Store.SupabaseURL == "") != (c.Store.SupabaseKey == "") {
		return fmt.Errorf("store.supabase_url and store.supabase_key must be set together")
	}

	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Transcription.PollInterval == 0 {
		c.Transcription.PollInterval = 3 * time.Second
	}
	if c.Transcription.Retry.MaxAttempts == 0 {
		c.Transcription.Retry = retry.DefaultPolicy
	}
	if c.LLM.Retry.MaxAttempts == 0 {
		c.LLM.Retry = retry.DefaultPolicy
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = "gpt-4o-mini"
	}
	if c.LLM.OpenAI.MaxTokens == 0 {
		c.LLM.OpenAI.MaxTokens = 4000
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = "gemini-2.0-flash"
	}
	if c.Pipeline.MaxChunkTokens == 0 {
		c.Pipeline.MaxChunkTokens = 3500
	}
	if c.Pipeline.ChunkConcurrency == 0 {
		c.Pipeline.ChunkConcurrency = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
