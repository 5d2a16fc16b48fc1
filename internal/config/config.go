package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ragqa/internal/logging"
)

// OpenAIConfig holds the shared connection settings of the OpenAI-compatible API.
// The key itself is read from the environment variable named by APIKeyEnv.
type OpenAIConfig struct {
	BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv string `yaml:"api_key_env"`
	APIKey    string `yaml:"-"`
}

// OpenAIEmbedderConfig configures the remote embedding model.
type OpenAIEmbedderConfig struct {
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"min=0"`
	BatchSize   int    `yaml:"batch_size" validate:"min=0,max=2048"`
	MaxRetries  int    `yaml:"max_retries" validate:"min=0,max=10"`
}

// HashingEmbedderConfig configures the offline n-gram embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension" validate:"min=0"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                `yaml:"type" validate:"oneof=openai hashing"`
	OpenAI  OpenAIEmbedderConfig  `yaml:"openai"`
	Hashing HashingEmbedderConfig `yaml:"hashing"`
}

// CompletionConfig configures the chat completion service.
type CompletionConfig struct {
	Type        string  `yaml:"type" validate:"oneof=openai"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature" validate:"min=0,max=2"`
	TimeoutSecs int     `yaml:"timeout_secs" validate:"min=0"`
	MaxRetries  int     `yaml:"max_retries" validate:"min=0,max=10"`
}

// RedisConfig contains connection details for the embedding cache.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	Password    string `yaml:"-"`
	DB          int    `yaml:"db" validate:"min=0"`
	TTLSecs     int    `yaml:"ttl_secs" validate:"min=0"`
}

// CacheConfig selects the embedding cache.
type CacheConfig struct {
	Type  string      `yaml:"type" validate:"oneof=none redis"`
	Redis RedisConfig `yaml:"redis"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type      string `yaml:"type" validate:"oneof=tiktoken words"`
	MaxTokens int    `yaml:"max_tokens" validate:"min=1"`
	Model     string `yaml:"model"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	APIKey      string `yaml:"-"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"min=0"`
}

// IndexConfig selects the vector index and where it lives.
type IndexConfig struct {
	Type       string `yaml:"type" validate:"oneof=local memory qdrant"`
	Dir        string `yaml:"dir"`
	Collection string `yaml:"collection" validate:"required"`
	// LockTimeoutSecs bounds the wait for another process building the local index.
	LockTimeoutSecs int          `yaml:"lock_timeout_secs" validate:"min=0"`
	Qdrant          QdrantConfig `yaml:"qdrant"`
}

// IngestConfig lists the knowledge sources and how they are fetched.
type IngestConfig struct {
	Sources          []string `yaml:"sources"`
	Concurrency      int      `yaml:"concurrency" validate:"min=0,max=64"`
	UserAgent        string   `yaml:"user_agent"`
	FetchTimeoutSecs int      `yaml:"fetch_timeout_secs" validate:"min=0"`
}

// RetrievalConfig configures top-k search.
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k" validate:"min=1,max=100"`
	MinScore float64 `yaml:"min_score" validate:"min=-1,max=1"`
}

// PipelineConfig configures the question answering state machine.
type PipelineConfig struct {
	MaxRewrites int    `yaml:"max_rewrites" validate:"min=0,max=2"`
	Rewriter    string `yaml:"rewriter" validate:"oneof=keyword llm"`
}

// AnswerConfig holds the grounding prompt and the refusal text.
type AnswerConfig struct {
	SystemPrompt   string `yaml:"system_prompt"`
	RefusalMessage string `yaml:"refusal_message" validate:"required"`
}

// MetricsConfig enables the Prometheus endpoint of the host process.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log        logging.Config   `yaml:"log"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Completion CompletionConfig `yaml:"completion"`
	Cache      CacheConfig      `yaml:"cache"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Index      IndexConfig      `yaml:"index"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Answer     AnswerConfig     `yaml:"answer"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Secrets are resolved from the environment and the result is validated.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyConfigDefaults(cfg)
	cfg.resolveSecrets()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, Default()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks field ranges and the settings each selected backend requires.
func (c *AppConfig) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.usesOpenAI() && c.OpenAI.APIKey == "" {
		return fmt.Errorf("invalid config: missing API key in env %s", c.OpenAI.APIKeyEnv)
	}
	if c.Index.Type == "qdrant" && c.Index.Qdrant.URL == "" {
		return errors.New("invalid config: index.qdrant.url is required for qdrant")
	}
	if c.Index.Type == "local" && c.Index.Dir == "" {
		return errors.New("invalid config: index.dir is required for local index")
	}
	if c.Cache.Type == "redis" && c.Cache.Redis.Addr == "" {
		return errors.New("invalid config: cache.redis.addr is required for redis cache")
	}
	return nil
}

func (c *AppConfig) usesOpenAI() bool {
	return c.Embedder.Type == "openai" || c.Completion.Type == "openai" || c.Pipeline.Rewriter == "llm"
}

func (c *AppConfig) resolveSecrets() {
	c.OpenAI.APIKey = os.Getenv(c.OpenAI.APIKeyEnv)
	if c.Index.Qdrant.APIKeyEnv != "" {
		c.Index.Qdrant.APIKey = os.Getenv(c.Index.Qdrant.APIKeyEnv)
	}
	if c.Cache.Redis.PasswordEnv != "" {
		c.Cache.Redis.Password = os.Getenv(c.Cache.Redis.PasswordEnv)
	}
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

// Default returns the baseline configuration of the baseball knowledge assistant.
func Default() *AppConfig {
	return &AppConfig{
		Log:        logging.Config{Level: "info", Format: "json"},
		OpenAI:     OpenAIConfig{BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"},
		Embedder:   EmbedderConfig{Type: "openai", OpenAI: OpenAIEmbedderConfig{Model: "text-embedding-3-small", TimeoutSecs: 30, BatchSize: 64, MaxRetries: 3}},
		Completion: CompletionConfig{Type: "openai", Model: "gpt-4o-mini", Temperature: 0, TimeoutSecs: 60, MaxRetries: 3},
		Cache:      CacheConfig{Type: "none"},
		Chunker:    ChunkerConfig{Type: "tiktoken", MaxTokens: 500, Model: "gpt-4o-mini"},
		Index:      IndexConfig{Type: "local", Dir: "chroma", Collection: "baseball-chroma", LockTimeoutSecs: 300},
		Ingest: IngestConfig{
			Sources:          []string{"https://namu.wiki/w/%EC%95%BC%EA%B5%AC/%EA%B2%BD%EA%B8%B0%20%EB%B0%A9%EC%8B%9D"},
			Concurrency:      4,
			UserAgent:        DefaultUserAgent,
			FetchTimeoutSecs: 30,
		},
		Retrieval: RetrievalConfig{TopK: 3},
		Pipeline:  PipelineConfig{MaxRewrites: 1, Rewriter: "keyword"},
		Answer:    AnswerConfig{SystemPrompt: DefaultSystemPrompt, RefusalMessage: DefaultRefusalMessage},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedder.OpenAI.Model == "" {
		cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
	}
	if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
		cfg.Embedder.OpenAI.TimeoutSecs = 30
	}
	if cfg.Embedder.OpenAI.BatchSize == 0 {
		cfg.Embedder.OpenAI.BatchSize = 64
	}
	if cfg.Embedder.Hashing.Dimension == 0 {
		cfg.Embedder.Hashing.Dimension = 512
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = "gpt-4o-mini"
	}
	if cfg.Completion.TimeoutSecs == 0 {
		cfg.Completion.TimeoutSecs = 60
	}
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = 500
	}
	if cfg.Chunker.Model == "" {
		cfg.Chunker.Model = "gpt-4o-mini"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "baseball-chroma"
	}
	if cfg.Index.LockTimeoutSecs == 0 {
		cfg.Index.LockTimeoutSecs = 300
	}
	if cfg.Index.Qdrant.TimeoutSecs == 0 {
		cfg.Index.Qdrant.TimeoutSecs = 15
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Ingest.UserAgent == "" {
		cfg.Ingest.UserAgent = DefaultUserAgent
	}
	if cfg.Ingest.FetchTimeoutSecs == 0 {
		cfg.Ingest.FetchTimeoutSecs = 30
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Answer.SystemPrompt == "" {
		cfg.Answer.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Answer.RefusalMessage == "" {
		cfg.Answer.RefusalMessage = DefaultRefusalMessage
	}
	if cfg.Cache.Redis.TTLSecs == 0 {
		cfg.Cache.Redis.TTLSecs = 7 * 24 * 3600
	}
}
