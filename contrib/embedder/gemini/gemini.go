package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sweetpotato0/ai-advocate/vector"
	"google.golang.org/api/option"
)

// DefaultModel is the Gemini embedding model used when none is configured.
const DefaultModel = "text-embedding-004"

// Embedder implements vector.Embedder with Gemini batch embeddings.
type Embedder struct {
	client    *genai.Client
	model     string
	dimension int
}

var _ vector.Embedder = (*Embedder)(nil)

// New creates an Embedder. Close releases the client.
func New(ctx context.Context, apiKey, model string) (*Embedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini embedder: API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: create client: %w", err)
	}
	return &Embedder{client: client, model: model, dimension: 768}, nil
}

// Close shuts down the client.
func (e *Embedder) Close() error { return e.client.Close() }

// Dimension implements vector.Embedder.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed implements vector.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements vector.Embedder with one BatchEmbedContents call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embedder: expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}
	out := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("gemini embedder: missing embedding at %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
