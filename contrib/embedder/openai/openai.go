package openai

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sweetpotato0/ai-advocate/vector"
)

// Embedder implements vector.Embedder with the OpenAI embeddings API.
type Embedder struct {
	client    openaisdk.Client
	model     openaisdk.EmbeddingModel
	dimension int
}

var _ vector.Embedder = (*Embedder)(nil)

// New creates an Embedder. baseURL may point at any OpenAI-compatible server.
func New(apiKey, baseURL string, model openaisdk.EmbeddingModel, dimension int) *Embedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = openaisdk.EmbeddingModelTextEmbedding3Small
	}
	return &Embedder{
		client:    openaisdk.NewClient(opts...),
		model:     model,
		dimension: dimension,
	}
}

// Dimension return number of embedding dimensions
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed converts text to a vector embedding
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple texts to embeddings in one request. Results
// are placed by the index the API reports, not by arrival order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openaisdk.EmbeddingNewParams{
		Model: e.model,
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openaisdk.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, emb := range resp.Data {
		idx := int(emb.Index)
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			return nil, fmt.Errorf("unexpected embedding index %d", emb.Index)
		}
		out[idx] = convertVector(emb.Embedding)
	}
	return out, nil
}

func convertVector(input []float64) []float32 {
	vec := make([]float32, len(input))
	for i, v := range input {
		vec[i] = float32(v)
	}
	return vec
}
