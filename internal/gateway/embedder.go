package gateway

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Embedding task types recognized by the provider. Documents are embedded
// with document intent at indexing time and queries with query intent at
// retrieval time; the two are not interchangeable.
const (
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// DefaultEmbeddingDimension matches the pgvector schema. The embedding
// model truncates to this size via OutputDimensionality.
const DefaultEmbeddingDimension int32 = 768

// EmbedderConfig contains required parameters for Embedder construction.
// The embedding API key is separate from the generation key, which is why
// the embedder runs on its own provider client.
type EmbedderConfig struct {
	APIKey    string
	Model     string
	Dimension int32 // 0 uses DefaultEmbeddingDimension
}

// Embedder generates text and image embeddings. Safe for concurrent use.
type Embedder struct {
	client *genai.Client
	model  string
	dim    int32
}

// NewEmbedder creates a provider client for embedding calls.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding API key is required", ErrModelBuild)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is required", ErrModelBuild)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating embedding client: %w", ErrModelBuild, err)
	}

	dim := cfg.Dimension
	if dim == 0 {
		dim = DefaultEmbeddingDimension
	}

	return &Embedder{client: client, model: cfg.Model, dim: dim}, nil
}

// EmbedText embeds text with the given retrieval task type.
func (e *Embedder) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &e.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return firstEmbedding(resp)
}

// EmbedImage embeds raw image bytes.
func (e *Embedder) EmbedImage(ctx context.Context, data []byte, mimeType string) ([]float32, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}}},
	}}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &e.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding image: %w", err)
	}
	return firstEmbedding(resp)
}

func firstEmbedding(resp *genai.EmbedContentResponse) ([]float32, error) {
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}
