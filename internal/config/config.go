package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the IntentFlow server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig
	Queue     QueueConfig
	Pipeline  PipelineConfig
	Generator GeneratorConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	MaxRetries       int
	Temperature      float64
	MaxTokens        int
	Ollama           OllamaConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type QueueConfig struct {
	Workers      int
	PollInterval time.Duration
	BackoffBase  time.Duration
}

type PipelineConfig struct {
	// ClassificationBatchSize is the number of tickets resolved by a single
	// classification job.
	ClassificationBatchSize int
	// FinalizerPollInterval is the delay between finalizer self-reschedules.
	FinalizerPollInterval time.Duration
	// CacheTTL bounds how long a classification result is served from cache.
	CacheTTL time.Duration
	// ClassifyTimeout and GenerateTimeout are the per-job execution timeouts.
	ClassifyTimeout time.Duration
	GenerateTimeout time.Duration
	// MaxJobAttempts bounds queue-level retries for classification and
	// generation jobs. The finalizer always runs with a single attempt.
	MaxJobAttempts int
}

type GeneratorConfig struct {
	BaseURL string
	Timeout time.Duration
}

var validProviders = map[string]bool{
	"ollama":    true,
	"openai":    true,
	"anthropic": true,
	"mock":      true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("INTENTFLOW_PORT", 8080),
			Env:  envString("INTENTFLOW_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			MaxRetries:       envInt("AI_MAX_RETRIES", 3),
			Temperature:      envFloat("AI_TEMPERATURE", 0.1),
			MaxTokens:        envInt("AI_MAX_TOKENS", 4096),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Queue: QueueConfig{
			Workers:      envInt("QUEUE_WORKERS", 4),
			PollInterval: envDuration("QUEUE_POLL_INTERVAL", time.Second),
			BackoffBase:  envDuration("QUEUE_BACKOFF_BASE", 5*time.Second),
		},
		Pipeline: PipelineConfig{
			ClassificationBatchSize: envInt("PIPELINE_CLASSIFICATION_BATCH_SIZE", 20),
			FinalizerPollInterval:   envDuration("PIPELINE_FINALIZER_POLL_INTERVAL", 30*time.Second),
			CacheTTL:                envDuration("PIPELINE_CACHE_TTL", 30*24*time.Hour),
			ClassifyTimeout:         envDuration("PIPELINE_CLASSIFY_TIMEOUT", 2*time.Minute),
			GenerateTimeout:         envDuration("PIPELINE_GENERATE_TIMEOUT", 10*time.Minute),
			MaxJobAttempts:          envInt("PIPELINE_MAX_JOB_ATTEMPTS", 3),
		},
		Generator: GeneratorConfig{
			BaseURL: os.Getenv("GENERATOR_BASE_URL"),
			Timeout: envDuration("GENERATOR_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, openai, anthropic, mock; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}

	if c.Generator.BaseURL == "" {
		return fmt.Errorf("GENERATOR_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Generator.BaseURL, "http://") && !strings.HasPrefix(c.Generator.BaseURL, "https://") {
		return fmt.Errorf("GENERATOR_BASE_URL must start with http:// or https://, got %q", c.Generator.BaseURL)
	}

	if c.Pipeline.ClassificationBatchSize < 1 {
		return fmt.Errorf("PIPELINE_CLASSIFICATION_BATCH_SIZE must be at least 1")
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("QUEUE_WORKERS must be at least 1")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
