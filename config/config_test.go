package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweetpotato0/ai-advocate/advocate/intake"
	"github.com/sweetpotato0/ai-advocate/prompt"
)

var envKeys = []string{
	"ADVOCATE_ADDR", "ADVOCATE_MODE", "ADVOCATE_LLM_PROVIDER", "ADVOCATE_LLM_MODEL",
	"ADVOCATE_LLM_BASE_URL", "ADVOCATE_EMBEDDING_PROVIDER", "ADVOCATE_EMBEDDING_MODEL",
	"ADVOCATE_EMBEDDING_URL", "ADVOCATE_SEARCH_PROVIDER", "ADVOCATE_CORPUS_DIR",
	"ADVOCATE_STORE", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "MONGODB_URI",
	"ADVOCATE_TOKENIZER", "ADVOCATE_LOG_LEVEL", "ADVOCATE_LOG_FORMAT",
	"ADVOCATE_RATE_LIMIT", "ADVOCATE_TELEMETRY_DISABLE", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"GOOGLE_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GROQ_API_KEY",
	"HF_TOKEN", "HUGGINGFACE_API_KEY",
}

// clearEnv blanks every variable Load reads. Blank values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func noDotenv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", noDotenv(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("store = %q", cfg.Store.Backend)
	}
	if cfg.Research.TokenBudget != 1500 || cfg.Research.MaxIssues != 3 {
		t.Errorf("research = %+v", cfg.Research)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("expected no API key, got %q", cfg.LLM.APIKey)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "advocate.yaml", `
server:
  addr: ":9090"
llm:
  provider: openai
  model: gpt-4o-mini
search:
  provider: static
  corpus_dir: ./corpus
intake:
  required_slots: [date, location]
  max_asks: 1
research:
  jurisdiction: India
retry:
  attempts: 5
  initial_delay: 250ms
prompts:
  intake.summarize: "Summarise the case."
`)

	cfg, err := Load(path, noDotenv(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.LLM.Provider != "openai" {
		t.Errorf("unexpected config: %+v", cfg.Server)
	}
	if cfg.Search.CorpusDir != "./corpus" {
		t.Errorf("corpus_dir = %q", cfg.Search.CorpusDir)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Search.MaxResults != 3 {
		t.Errorf("max_results = %d", cfg.Search.MaxResults)
	}
	if cfg.Retry.Attempts != 5 || cfg.Retry.InitialDelay != 250*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Retry)
	}

	policy, err := cfg.Policy()
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if len(policy.Required) != 2 || policy.Required[0] != intake.SlotDate || policy.MaxAsks != 1 {
		t.Errorf("policy = %+v", policy)
	}

	m, err := cfg.PromptManager()
	if err != nil {
		t.Fatalf("PromptManager: %v", err)
	}
	got, err := m.Render(prompt.IntakeSummarize, nil)
	if err != nil || got != "Summarise the case." {
		t.Errorf("override not applied: %q, %v", got, err)
	}
}

func TestLoadRejectsUnknownYAMLField(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "bad.yaml", "server:\n  adress: \":9090\"\n")
	if _, err := Load(path, noDotenv(t)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadMissingYAML(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), noDotenv(t)); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvironmentOverridesYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "advocate.yaml", "llm:\n  provider: openai\nstore:\n  backend: memory\n")
	t.Setenv("ADVOCATE_LLM_PROVIDER", "claude")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ADVOCATE_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/advocate")
	t.Setenv("ADVOCATE_RATE_LIMIT", "2.5")
	t.Setenv("ADVOCATE_TELEMETRY_DISABLE", "true")

	cfg, err := Load(path, noDotenv(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "claude" || cfg.LLM.APIKey != "sk-ant" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Store.Backend != "postgres" || cfg.Store.PostgresDSN != "postgres://localhost/advocate" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Server.RateLimit != 2.5 || !cfg.Telemetry.Disable {
		t.Errorf("server = %+v telemetry = %+v", cfg.Server, cfg.Telemetry)
	}
}

func TestInvalidEnvironmentValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADVOCATE_RATE_LIMIT", "fast")
	if _, err := Load("", noDotenv(t)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDotenvFile(t *testing.T) {
	clearEnv(t)
	const key = "ADVOCATE_JURISDICTION"
	if _, set := os.LookupEnv(key); set {
		t.Skipf("%s already set in the environment", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })

	env := writeFile(t, ".env", key+"=Kenya\n")
	cfg, err := Load("", env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Research.Jurisdiction != "Kenya" {
		t.Errorf("jurisdiction = %q", cfg.Research.Jurisdiction)
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.LLM.APIKey = "key"
	cfg.Embedding.APIKey = "hf"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults with keys", mutate: func(*Config) {}},
		{name: "missing llm key", mutate: func(c *Config) { c.LLM.APIKey = "" }, wantErr: "llm.api_key"},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "llama" }, wantErr: "llm.provider"},
		{name: "no embedding needs no key", mutate: func(c *Config) {
			c.Embedding.Provider = "none"
			c.Embedding.APIKey = ""
		}},
		{name: "static search without corpus", mutate: func(c *Config) { c.Search.Provider = "static" }, wantErr: "search.corpus_dir"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Backend = "postgres" }, wantErr: "store.postgres_dsn"},
		{name: "redis db out of range", mutate: func(c *Config) {
			c.Store.Backend = "redis"
			c.Store.RedisDB = 20
		}, wantErr: "store.redis_db"},
		{name: "unknown slot", mutate: func(c *Config) { c.Intake.RequiredSlots = []string{"weather"} }, wantErr: "intake"},
		{name: "unknown prompt", mutate: func(c *Config) { c.Prompts = map[string]string{"nope": "x"} }, wantErr: "prompts"},
		{name: "bad tokenizer", mutate: func(c *Config) { c.Research.Tokenizer = "bpe" }, wantErr: "research.tokenizer"},
		{name: "zero token budget", mutate: func(c *Config) { c.Research.TokenBudget = 0 }, wantErr: "research.token_budget"},
		{name: "zero passage tokens", mutate: func(c *Config) { c.Research.PassageTokens = 0 }, wantErr: "research.passage_tokens"},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Telemetry.SampleRatio = 1.5 }, wantErr: "telemetry.sample_ratio"},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestRetryPolicyMirrorsConfig(t *testing.T) {
	cfg := Default()
	cfg.Retry.Attempts = 7
	cfg.Retry.StatusCodes = []int{429}

	p := cfg.RetryPolicy()
	if p.Attempts != 7 || len(p.StatusCodes) != 1 || p.StatusCodes[0] != 429 {
		t.Errorf("policy = %+v", p)
	}
}
