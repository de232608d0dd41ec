// Package config loads process configuration from defaults, an optional
// YAML file, a .env file and the environment, in that order of precedence
// (later sources win).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sweetpotato0/ai-advocate/advocate/intake"
	"github.com/sweetpotato0/ai-advocate/agent"
	"github.com/sweetpotato0/ai-advocate/prompt"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	LLM       LLMConfig         `yaml:"llm"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Search    SearchConfig      `yaml:"search"`
	Store     StoreConfig       `yaml:"store"`
	Intake    IntakeConfig      `yaml:"intake"`
	Research  ResearchConfig    `yaml:"research"`
	Retry     RetryConfig       `yaml:"retry"`
	Log       LogConfig         `yaml:"log"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	Prompts   map[string]string `yaml:"prompts"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	Mode string `yaml:"mode"`

	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// LLMConfig selects the language model.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	APIKey      string  `yaml:"-"`
}

// EmbeddingConfig selects the embedding provider used for ranking. An empty
// Model uses the provider's default.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	URL       string        `yaml:"url"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
	APIKey    string        `yaml:"-"`
}

// SearchConfig selects the search collaborator.
type SearchConfig struct {
	Provider   string        `yaml:"provider"`
	MaxResults int           `yaml:"max_results"`
	FetchPages bool          `yaml:"fetch_pages"`
	Timeout    time.Duration `yaml:"timeout"`
	CorpusDir  string        `yaml:"corpus_dir"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend         string        `yaml:"backend"`
	PostgresDSN     string        `yaml:"postgres_dsn"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPassword   string        `yaml:"-"`
	RedisDB         int           `yaml:"redis_db"`
	RedisPrefix     string        `yaml:"redis_prefix"`
	RedisTTL        time.Duration `yaml:"redis_ttl"`
	MongoURI        string        `yaml:"mongo_uri"`
	MongoDatabase   string        `yaml:"mongo_database"`
	MongoCollection string        `yaml:"mongo_collection"`
}

// IntakeConfig overrides the slot policy.
type IntakeConfig struct {
	RequiredSlots []string `yaml:"required_slots"`
	SlotPriority  []string `yaml:"slot_priority"`
	MaxAsks       int      `yaml:"max_asks"`
}

// ResearchConfig tunes the research stage.
type ResearchConfig struct {
	MaxIssues     int    `yaml:"max_issues"`
	TokenBudget   int    `yaml:"token_budget"`
	PassageTokens int    `yaml:"passage_tokens"`
	Tokenizer     string `yaml:"tokenizer"`
	Encoding      string `yaml:"encoding"`
	Jurisdiction  string `yaml:"jurisdiction"`
}

// RetryConfig mirrors agent.RetryPolicy.
type RetryConfig struct {
	Attempts     int           `yaml:"attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	StatusCodes  []int         `yaml:"status_codes"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig configures pkg/telemetry.
type TelemetryConfig struct {
	Disable     bool    `yaml:"disable"`
	ServiceName string  `yaml:"service_name"`
	Environment string  `yaml:"environment"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the built-in configuration.
func Default() *Config {
	retry := agent.DefaultRetryPolicy()
	return &Config{
		Server: ServerConfig{Addr: ":8080", Mode: "release", RateLimit: 5, Burst: 10},
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.5-flash",
			Temperature: 0.2,
			MaxTokens:   4096,
		},
		Embedding: EmbeddingConfig{
			Provider:  "huggingface",
			Dimension: 768,
			Timeout:   60 * time.Second,
		},
		Search: SearchConfig{
			Provider:   "duckduckgo",
			MaxResults: 3,
			FetchPages: true,
			Timeout:    20 * time.Second,
		},
		Store: StoreConfig{
			Backend:         "memory",
			RedisAddr:       "localhost:6379",
			RedisPrefix:     "ai-advocate:session:",
			MongoDatabase:   "ai_advocate",
			MongoCollection: "chat_sessions",
		},
		Intake:    IntakeConfig{MaxAsks: intake.DefaultPolicy().MaxAsks},
		Research:  ResearchConfig{MaxIssues: 3, TokenBudget: 1500, PassageTokens: 256, Tokenizer: "word", Encoding: "cl100k_base"},
		Retry:     RetryConfig(retry),
		Log:       LogConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{ServiceName: "ai-advocate"},
	}
}

// Load builds the configuration. path names an optional YAML file; envFiles
// default to ".env" and missing files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "ADVOCATE_ADDR")
	setString(&c.Server.Mode, "ADVOCATE_MODE")
	setString(&c.LLM.Provider, "ADVOCATE_LLM_PROVIDER")
	setString(&c.LLM.Model, "ADVOCATE_LLM_MODEL")
	setString(&c.LLM.BaseURL, "ADVOCATE_LLM_BASE_URL")
	setString(&c.Embedding.Provider, "ADVOCATE_EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "ADVOCATE_EMBEDDING_MODEL")
	setString(&c.Embedding.URL, "ADVOCATE_EMBEDDING_URL")
	setString(&c.Search.Provider, "ADVOCATE_SEARCH_PROVIDER")
	setString(&c.Search.CorpusDir, "ADVOCATE_CORPUS_DIR")
	setString(&c.Store.Backend, "ADVOCATE_STORE")
	setString(&c.Store.PostgresDSN, "DATABASE_URL")
	setString(&c.Store.RedisAddr, "REDIS_ADDR")
	setString(&c.Store.RedisPassword, "REDIS_PASSWORD")
	setString(&c.Store.MongoURI, "MONGODB_URI")
	setString(&c.Research.Jurisdiction, "ADVOCATE_JURISDICTION")
	setString(&c.Research.Tokenizer, "ADVOCATE_TOKENIZER")
	setString(&c.Log.Level, "ADVOCATE_LOG_LEVEL")
	setString(&c.Log.Format, "ADVOCATE_LOG_FORMAT")

	if v, ok := lookup("ADVOCATE_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ADVOCATE_RATE_LIMIT: %w", err)
		}
		c.Server.RateLimit = f
	}
	setString(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	if v, ok := lookup("ADVOCATE_TELEMETRY_DISABLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ADVOCATE_TELEMETRY_DISABLE: %w", err)
		}
		c.Telemetry.Disable = b
	}

	if c.LLM.APIKey == "" {
		c.LLM.APIKey = apiKeyFor(c.LLM.Provider)
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = apiKeyFor(c.Embedding.Provider)
	}
	return nil
}

func apiKeyFor(provider string) string {
	var keys []string
	switch provider {
	case "gemini":
		keys = []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}
	case "openai":
		keys = []string{"OPENAI_API_KEY"}
	case "claude":
		keys = []string{"ANTHROPIC_API_KEY"}
	case "groq":
		keys = []string{"GROQ_API_KEY"}
	case "huggingface":
		keys = []string{"HF_TOKEN", "HUGGINGFACE_API_KEY"}
	}
	for _, k := range keys {
		if v, ok := lookup(k); ok {
			return v
		}
	}
	return ""
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	v := NewValidator()

	v.RequireNonEmpty("server.addr", c.Server.Addr)
	v.ValidateOneOf("server.mode", c.Server.Mode, "debug", "release", "test")
	v.ValidateFloatRange("server.rate_limit", c.Server.RateLimit, 0, 10000)
	if c.Server.RateLimit > 0 {
		v.RequirePositive("server.burst", c.Server.Burst)
	}

	v.ValidateOneOf("llm.provider", c.LLM.Provider, "gemini", "openai", "claude", "groq")
	v.RequireNonEmpty("llm.api_key", c.LLM.APIKey)
	v.ValidateFloatRange("llm.temperature", c.LLM.Temperature, 0, 2)
	v.RequirePositive("llm.max_tokens", c.LLM.MaxTokens)
	if c.LLM.BaseURL != "" {
		v.ValidateURL("llm.base_url", c.LLM.BaseURL)
	}

	v.ValidateOneOf("embedding.provider", c.Embedding.Provider, "huggingface", "openai", "gemini", "none")
	if c.Embedding.Provider != "none" {
		v.RequireNonEmpty("embedding.api_key", c.Embedding.APIKey)
	}
	if c.Embedding.URL != "" {
		v.ValidateURL("embedding.url", c.Embedding.URL)
	}

	v.ValidateOneOf("search.provider", c.Search.Provider, "duckduckgo", "static", "none")
	v.RequirePositive("search.max_results", c.Search.MaxResults)
	if c.Search.Provider == "static" {
		v.RequireNonEmpty("search.corpus_dir", c.Search.CorpusDir)
	}

	v.ValidateOneOf("store.backend", c.Store.Backend, "memory", "postgres", "redis", "mongo")
	switch c.Store.Backend {
	case "postgres":
		v.RequireNonEmpty("store.postgres_dsn", c.Store.PostgresDSN)
	case "redis":
		v.RequireNonEmpty("store.redis_addr", c.Store.RedisAddr)
		v.ValidateDBNumber("store.redis_db", c.Store.RedisDB)
		v.RequireNonEmpty("store.redis_prefix", c.Store.RedisPrefix)
	case "mongo":
		v.RequireNonEmpty("store.mongo_uri", c.Store.MongoURI)
		v.RequireNonEmpty("store.mongo_database", c.Store.MongoDatabase)
		v.RequireNonEmpty("store.mongo_collection", c.Store.MongoCollection)
	}

	_, err := c.Policy()
	v.Check("intake", err)

	v.RequirePositive("research.max_issues", c.Research.MaxIssues)
	v.RequirePositive("research.token_budget", c.Research.TokenBudget)
	v.RequirePositive("research.passage_tokens", c.Research.PassageTokens)
	v.ValidateOneOf("research.tokenizer", c.Research.Tokenizer, "word", "tiktoken")

	v.RequirePositive("retry.attempts", c.Retry.Attempts)
	v.ValidateFloatRange("retry.multiplier", c.Retry.Multiplier, 1, 100)
	v.ValidateFloatRange("telemetry.sample_ratio", c.Telemetry.SampleRatio, 0, 1)

	v.ValidateOneOf("log.level", strings.ToLower(c.Log.Level), "debug", "info", "warn", "error")
	v.ValidateOneOf("log.format", strings.ToLower(c.Log.Format), "json", "text")

	_, err = c.PromptManager()
	v.Check("prompts", err)

	return v.Error()
}

// Policy returns the intake slot policy.
func (c *Config) Policy() (intake.Policy, error) {
	return intake.NewPolicy(c.Intake.RequiredSlots, c.Intake.SlotPriority, c.Intake.MaxAsks)
}

// RetryPolicy returns the LLM retry policy.
func (c *Config) RetryPolicy() agent.RetryPolicy {
	return agent.RetryPolicy(c.Retry)
}

// PromptManager returns the default prompts with configured overrides.
func (c *Config) PromptManager() (*prompt.Manager, error) {
	m := prompt.NewDefaultManager()
	if err := m.Apply(c.Prompts); err != nil {
		return nil, err
	}
	return m, nil
}
