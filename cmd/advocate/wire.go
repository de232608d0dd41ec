package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sweetpotato0/ai-advocate/advocate"
	"github.com/sweetpotato0/ai-advocate/advocate/intake"
	"github.com/sweetpotato0/ai-advocate/advocate/research"
	"github.com/sweetpotato0/ai-advocate/agent"
	"github.com/sweetpotato0/ai-advocate/config"
	geminiembed "github.com/sweetpotato0/ai-advocate/contrib/embedder/gemini"
	"github.com/sweetpotato0/ai-advocate/contrib/embedder/huggingface"
	openaiembed "github.com/sweetpotato0/ai-advocate/contrib/embedder/openai"
	"github.com/sweetpotato0/ai-advocate/contrib/provider/claude"
	"github.com/sweetpotato0/ai-advocate/contrib/provider/gemini"
	"github.com/sweetpotato0/ai-advocate/contrib/provider/openai"
	"github.com/sweetpotato0/ai-advocate/contrib/search/duckduckgo"
	"github.com/sweetpotato0/ai-advocate/contrib/tokenizer/tiktoken"
	"github.com/sweetpotato0/ai-advocate/pkg/metrics"
	"github.com/sweetpotato0/ai-advocate/rag/chunking"
	"github.com/sweetpotato0/ai-advocate/rag/ranker"
	"github.com/sweetpotato0/ai-advocate/rag/tokenizer"
	"github.com/sweetpotato0/ai-advocate/search"
	"github.com/sweetpotato0/ai-advocate/store"
	"github.com/sweetpotato0/ai-advocate/vector"
)

// groqBaseURL is Groq's OpenAI-compatible endpoint.
const groqBaseURL = "https://api.groq.com/openai/v1"

// components holds every long-lived client. They are built once per
// process and shared by all sessions.
type components struct {
	cfg         *config.Config
	llm         agent.LLMClient
	ranker      *ranker.Ranker
	searcher    search.Searcher
	store       store.Store
	metrics     *metrics.Metrics
	coordinator *advocate.Coordinator

	closers []func() error
}

// Close releases clients in reverse construction order.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *components) onClose(fn func() error) {
	if fn != nil {
		c.closers = append(c.closers, fn)
	}
}

// build wires the pipeline from cfg. reg may be nil to skip metrics.
func build(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (_ *components, err error) {
	c := &components{cfg: cfg}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if reg != nil {
		c.metrics = metrics.New(reg)
	}

	llm, closeLLM, err := newLLM(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	c.onClose(closeLLM)
	c.llm = agent.WithRetry(llm, cfg.RetryPolicy())

	c.ranker, err = c.newRanker(ctx)
	if err != nil {
		return nil, err
	}

	c.searcher, err = newSearcher(cfg.Search)
	if err != nil {
		return nil, err
	}

	tok, err := newTokenizer(cfg.Research)
	if err != nil {
		return nil, err
	}

	c.store, err = newStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	c.onClose(c.store.Close)

	prompts, err := cfg.PromptManager()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	gatherer := intake.New(c.llm,
		intake.WithPolicy(policy),
		intake.WithPrompts(prompts),
	)
	investigator := research.New(c.llm, research.NewCapabilities(c.searcher, c.ranker),
		research.WithPrompts(prompts),
		research.WithTokenizer(tok),
		research.WithChunker(chunking.NewSimpleChunker(
			chunking.WithTokenizer(tok),
			chunking.WithMaxTokens(cfg.Research.PassageTokens),
		)),
		research.WithTokenBudget(cfg.Research.TokenBudget),
		research.WithMaxIssues(cfg.Research.MaxIssues),
		research.WithJurisdiction(cfg.Research.Jurisdiction),
	)
	c.coordinator, err = advocate.New(gatherer, investigator,
		advocate.WithRecorder(c.store),
		advocate.WithMetrics(c.metrics),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// newRanker returns nil when embeddings are disabled; research then falls
// back to search snippets.
func (c *components) newRanker(ctx context.Context) (*ranker.Ranker, error) {
	emb, closeEmb, err := newEmbedder(ctx, c.cfg.Embedding)
	if err != nil {
		return nil, err
	}
	if emb == nil {
		return nil, nil
	}
	c.onClose(closeEmb)
	return ranker.New(emb, ranker.WithMetrics(c.metrics)), nil
}

func newLLM(ctx context.Context, cfg config.LLMConfig) (agent.LLMClient, func() error, error) {
	switch cfg.Provider {
	case "gemini":
		p, err := gemini.New(ctx, &gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   int32(cfg.MaxTokens),
			Temperature: float32(cfg.Temperature),
		})
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "openai", "groq":
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.Provider == "groq" {
			baseURL = groqBaseURL
		}
		return openai.New(&openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     baseURL,
			Model:       cfg.Model,
			MaxTokens:   int64(cfg.MaxTokens),
			Temperature: cfg.Temperature,
		}), nil, nil
	case "claude":
		return claude.New(&claude.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   int64(cfg.MaxTokens),
			Temperature: cfg.Temperature,
		}), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func newEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (vector.Embedder, func() error, error) {
	switch cfg.Provider {
	case "none", "":
		return nil, nil, nil
	case "huggingface":
		hc := huggingface.DefaultConfig(cfg.APIKey)
		hc.URL = cfg.URL
		if hc.URL == "" {
			hc.URL = huggingface.ModelURL(cfg.Model)
		}
		if cfg.Dimension > 0 {
			hc.Dimension = cfg.Dimension
		}
		if cfg.Timeout > 0 {
			hc.Timeout = cfg.Timeout
		}
		emb, err := huggingface.New(hc, &http.Client{Timeout: hc.Timeout})
		return emb, nil, err
	case "openai":
		return openaiembed.New(cfg.APIKey, cfg.URL, openaisdk.EmbeddingModel(cfg.Model), cfg.Dimension), nil, nil
	case "gemini":
		emb, err := geminiembed.New(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return emb, emb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// newSearcher returns a nil interface when search is disabled so research
// sees the capability as absent.
func newSearcher(cfg config.SearchConfig) (search.Searcher, error) {
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "static":
		return search.LoadDir(cfg.CorpusDir, cfg.MaxResults)
	case "duckduckgo":
		dc := duckduckgo.DefaultConfig()
		dc.MaxResults = cfg.MaxResults
		dc.FetchPages = cfg.FetchPages
		if cfg.Timeout > 0 {
			dc.Timeout = cfg.Timeout
		}
		return duckduckgo.New(dc, nil), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}
}

func newTokenizer(cfg config.ResearchConfig) (tokenizer.Tokenizer, error) {
	switch cfg.Tokenizer {
	case "word", "":
		return tokenizer.NewWordTokenizer(), nil
	case "tiktoken":
		return tiktoken.New(cfg.Encoding)
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", cfg.Tokenizer)
	}
}

func newStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return store.NewInMemoryStore(), nil
	case "postgres":
		return store.NewPostgresStore(ctx, &store.PostgresConfig{DSN: cfg.PostgresDSN})
	case "redis":
		rs := store.NewRedisStore(&store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
			TTL:      cfg.RedisTTL,
		})
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return rs, nil
	case "mongo":
		return store.NewMongoStore(ctx, &store.MongoConfig{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func logConfig(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration loaded",
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"embedding_provider", cfg.Embedding.Provider,
		"search_provider", cfg.Search.Provider,
		"store", cfg.Store.Backend,
		"tokenizer", cfg.Research.Tokenizer,
	)
}
