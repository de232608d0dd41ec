// Package huggingface implements vector.Embedder on the Hugging Face
// inference feature-extraction pipeline.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sweetpotato0/ai-advocate/vector"
)

const pipelineURL = "https://api-inference.huggingface.co/pipeline/feature-extraction/"

// DefaultModel is a BERT model trained on Indian legal text.
const DefaultModel = "law-ai/InLegalBERT"

// DefaultURL serves DefaultModel.
const DefaultURL = pipelineURL + DefaultModel

// ModelURL returns the feature-extraction endpoint for a hub model id.
func ModelURL(model string) string {
	model = strings.Trim(strings.TrimSpace(model), "/")
	if model == "" {
		return DefaultURL
	}
	return pipelineURL + model
}

const maxErrorBody = 512

// Config holds the endpoint settings.
type Config struct {
	Token     string
	URL       string
	Dimension int
	Timeout   time.Duration

	// Attempts bounds retries of 429 and 503 (model still loading).
	Attempts int
}

// DefaultConfig returns the InLegalBERT configuration.
func DefaultConfig(token string) *Config {
	return &Config{
		Token:     token,
		URL:       DefaultURL,
		Dimension: 768,
		Timeout:   60 * time.Second,
		Attempts:  3,
	}
}

// Embedder calls the feature-extraction endpoint once per batch.
type Embedder struct {
	config *Config
	client *http.Client
}

var _ vector.Embedder = (*Embedder)(nil)

// New creates an Embedder. A nil client uses a client with cfg.Timeout.
func New(cfg *Config, client *http.Client) (*Embedder, error) {
	if cfg == nil || strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("huggingface: HF_TOKEN is required")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Embedder{config: cfg, client: client}, nil
}

// Dimension implements vector.Embedder.
func (e *Embedder) Dimension() int { return e.config.Dimension }

// Embed implements vector.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type request struct {
	Inputs  []string       `json:"inputs"`
	Options requestOptions `json:"options"`
}

type requestOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("huggingface: status %d: %s", e.code, e.body)
}

// EmbedBatch implements vector.Embedder.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(request{Inputs: texts, Options: requestOptions{WaitForModel: true}})
	if err != nil {
		return nil, fmt.Errorf("huggingface: encode request: %w", err)
	}

	attempts := max(e.config.Attempts, 1)
	raw, err := backoff.Retry(ctx, func() ([]byte, error) {
		body, err := e.post(ctx, payload)
		if se, ok := err.(*statusError); ok && se.code != http.StatusTooManyRequests && se.code != http.StatusServiceUnavailable {
			return nil, backoff.Permanent(err)
		}
		return body, err
	}, backoff.WithMaxTries(uint(attempts)), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return nil, err
	}
	return Decode(raw, len(texts))
}

func (e *Embedder) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("huggingface: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.config.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("huggingface: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(snippet)}
	}
	return body, nil
}

// Decode parses a feature-extraction response holding one entry per input.
// Each entry is either a pooled vector or a token matrix, which is
// mean-pooled into a single vector.
func Decode(raw []byte, want int) ([][]float32, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("huggingface: expected a list of embeddings: %w", err)
	}
	if len(entries) != want {
		return nil, fmt.Errorf("huggingface: expected %d embeddings, got %d", want, len(entries))
	}

	out := make([][]float32, len(entries))
	for i, entry := range entries {
		var flat []float32
		if err := json.Unmarshal(entry, &flat); err == nil {
			if len(flat) == 0 {
				return nil, fmt.Errorf("huggingface: empty embedding at %d", i)
			}
			out[i] = flat
			continue
		}
		var matrix [][]float32
		if err := json.Unmarshal(entry, &matrix); err != nil {
			return nil, fmt.Errorf("huggingface: malformed embedding at %d: %w", i, err)
		}
		pooled := vector.MeanPool(matrix)
		if pooled == nil {
			return nil, fmt.Errorf("huggingface: ragged token matrix at %d", i)
		}
		out[i] = pooled
	}
	return out, nil
}
