package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/enfinyte/umem/pkg/retry"
)

// Supported vector store backends. Exactly one is selected at startup.
const (
	BackendMilvus = "milvus"
	BackendMySQL  = "mysql"
)

// AppInfo holds basic application metadata.
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LoggerConfig configures the structured logger.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// HTTPConfig configures the HTTP front end.
type HTTPConfig struct {
	Address string `yaml:"address"`
}

// MCPConfig configures the MCP front end.
type MCPConfig struct {
	Transport string `yaml:"transport"` // "httpstream"
	Address   string `yaml:"address"`
}

// ServerConfig groups the front end listeners.
type ServerConfig struct {
	HTTP HTTPConfig `yaml:"http"`
	MCP  MCPConfig  `yaml:"mcp"`
}

// OpenAIConfig holds credentials and model selection for the OpenAI API.
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseURL"`
}

// OllamaConfig holds the model and endpoint for a local Ollama server.
type OllamaConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseURL"`
}

// GeminiConfig holds credentials and model selection for the Gemini API.
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// LLMConfig selects and configures the text-generation provider used by the
// annotation pipeline.
type LLMConfig struct {
	Provider string       `yaml:"provider"` // "openai" or "ollama"
	OpenAI   OpenAIConfig `yaml:"openai"`
	Ollama   OllamaConfig `yaml:"ollama"`
}

// EmbeddingCacheConfig configures the redis-backed embedding cache.
type EmbeddingCacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	TTL     string `yaml:"ttl"`
}

// EmbeddingConfig selects and configures the embedding provider. Dimensions
// fixes the vector width for the whole deployment; every embedding and every
// stored vector must match it.
type EmbeddingConfig struct {
	Provider   string               `yaml:"provider"` // "openai", "gemini", or "ollama"
	Dimensions int                  `yaml:"dimensions"`
	OpenAI     OpenAIConfig         `yaml:"openai"`
	Gemini     GeminiConfig         `yaml:"gemini"`
	Ollama     OllamaConfig         `yaml:"ollama"`
	Cache      EmbeddingCacheConfig `yaml:"cache"`
}

// RetryConfig bounds the backoff applied to annotation and embedding calls.
type RetryConfig struct {
	MaxAttempts     int    `yaml:"maxAttempts"`
	InitialInterval string `yaml:"initialInterval"`
	MaxInterval     string `yaml:"maxInterval"`
	MaxElapsed      string `yaml:"maxElapsed"`
}

// MilvusConfig configures the Milvus backend.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
}

// MySQLConfig configures the relational backend.
type MySQLConfig struct {
	Address         string `yaml:"address"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // seconds
}

// VectorStoreConfig selects exactly one concrete backend.
type VectorStoreConfig struct {
	Backend string       `yaml:"backend"` // "milvus" or "mysql"
	Milvus  MilvusConfig `yaml:"milvus"`
	MySQL   MySQLConfig  `yaml:"mysql"`
}

// RedisConfig configures the redis connection used by the embedding cache.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig configures the optional ingestion consumer.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"groupID"`
}

// AppConfig is the root configuration. It is loaded once at process start and
// passed explicitly into every constructor; nothing reads it lazily.
type AppConfig struct {
	App         AppInfo           `yaml:"app"`
	Logger      LoggerConfig      `yaml:"logger"`
	Server      ServerConfig      `yaml:"server"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Retry       RetryConfig       `yaml:"retry"`
	VectorStore VectorStoreConfig `yaml:"vectorStore"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
}

// LoadConfig reads, parses, and validates the YAML configuration at path.
func LoadConfig(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies defaults and checks the configuration at a single boundary
// so later consumers can trust every field.
func (c *AppConfig) Validate() error {
	if c.Server.HTTP.Address == "" {
		c.Server.HTTP.Address = ":8080"
	}
	if c.Server.MCP.Transport == "" {
		c.Server.MCP.Transport = "httpstream"
	}
	switch c.Server.MCP.Transport {
	case "httpstream":
		if c.Server.MCP.Address == "" {
			c.Server.MCP.Address = ":8081"
		}
	case "stdio":
		// Stdout carries the JSON logs, so a stdio protocol stream cannot
		// share this process.
		return fmt.Errorf("mcp transport %q is not supported, use \"httpstream\"", c.Server.MCP.Transport)
	default:
		return fmt.Errorf("unsupported mcp transport: %q", c.Server.MCP.Transport)
	}

	switch c.VectorStore.Backend {
	case BackendMilvus, BackendMySQL:
	case "":
		return fmt.Errorf("vectorStore.backend must be set to %q or %q", BackendMilvus, BackendMySQL)
	default:
		return fmt.Errorf("unsupported vector store backend: %q", c.VectorStore.Backend)
	}
	if c.VectorStore.Backend == BackendMilvus && c.VectorStore.Milvus.Collection == "" {
		c.VectorStore.Milvus.Collection = "memories"
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be greater than zero, got %d", c.Embedding.Dimensions)
	}
	switch c.Embedding.Provider {
	case "openai", "gemini", "ollama":
	default:
		return fmt.Errorf("unsupported embedding provider: %q", c.Embedding.Provider)
	}
	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unsupported llm provider: %q", c.LLM.Provider)
	}

	if _, err := c.RetryPolicy(); err != nil {
		return err
	}
	if c.Embedding.Cache.Enabled {
		if _, err := c.EmbeddingCacheTTL(); err != nil {
			return err
		}
	}
	return nil
}

// RetryPolicy converts the retry section into a policy, falling back to the
// defaults for unset fields.
func (c *AppConfig) RetryPolicy() (retry.Policy, error) {
	policy := retry.DefaultPolicy()
	if c.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = c.Retry.MaxAttempts
	}
	if err := parseDuration(c.Retry.InitialInterval, &policy.InitialInterval); err != nil {
		return retry.Policy{}, fmt.Errorf("invalid retry.initialInterval: %w", err)
	}
	if err := parseDuration(c.Retry.MaxInterval, &policy.MaxInterval); err != nil {
		return retry.Policy{}, fmt.Errorf("invalid retry.maxInterval: %w", err)
	}
	if err := parseDuration(c.Retry.MaxElapsed, &policy.MaxElapsed); err != nil {
		return retry.Policy{}, fmt.Errorf("invalid retry.maxElapsed: %w", err)
	}
	return policy, nil
}

// EmbeddingCacheTTL parses the embedding cache TTL, defaulting to 24h.
func (c *AppConfig) EmbeddingCacheTTL() (time.Duration, error) {
	if c.Embedding.Cache.TTL == "" {
		return 24 * time.Hour, nil
	}
	ttl, err := time.ParseDuration(c.Embedding.Cache.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid embedding.cache.ttl: %w", err)
	}
	return ttl, nil
}

func parseDuration(s string, out *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*out = d
	return nil
}
