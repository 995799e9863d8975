package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/corpuslabs/corpusd/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultOpenAIModel is the hosted model used when none is configured.
	DefaultOpenAIModel = string(openai.SmallEmbedding3)
	// DefaultBatchSize is the number of documents sent per request; the
	// endpoint's documented cap is 2048 inputs.
	DefaultBatchSize = 512
	// MaxBatchSize is the endpoint's documented per-request input cap.
	MaxBatchSize = 2048
)

// embeddingsAPI is the slice of the OpenAI client the provider uses,
// extracted for testability.
type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIConfig configures the hosted backend.
type OpenAIConfig struct {
	APIKey string
	Model  string
	// BatchSize caps documents per request; defaults to DefaultBatchSize,
	// clamped to MaxBatchSize.
	BatchSize int
	// StripNewlines replaces newlines with spaces before sending, a
	// normalization some embedding backends require.
	StripNewlines bool
	// Dimensions requests a fixed output dimensionality when the model
	// supports it; zero leaves the model default.
	Dimensions int
}

// OpenAIProvider is the hosted embedding backend. Documents are chunked
// into batches before the call; each batch is one request.
type OpenAIProvider struct {
	api           embeddingsAPI
	model         openai.EmbeddingModel
	batchSize     int
	stripNewlines bool
	dimensions    int
}

// NewOpenAIProvider creates the hosted backend from configuration.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	return newOpenAIProviderWithAPI(openai.NewClient(cfg.APIKey), cfg)
}

func newOpenAIProviderWithAPI(api embeddingsAPI, cfg OpenAIConfig) *OpenAIProvider {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	return &OpenAIProvider{
		api:           api,
		model:         openai.EmbeddingModel(model),
		batchSize:     batchSize,
		stripNewlines: cfg.StripNewlines,
		dimensions:    cfg.Dimensions,
	}
}

// EmbedDocuments embeds texts in batches, preserving input order.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := make([]string, end-start)
		for i, text := range texts[start:end] {
			if p.stripNewlines {
				text = strings.ReplaceAll(text, "\n", " ")
			}
			batch[i] = text
		}

		resp, err := p.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      batch,
			Model:      p.model,
			Dimensions: p.dimensions,
		})
		if err != nil {
			return nil, classifyBackendError(
				fmt.Sprintf("openai embeddings call failed for batch of %d", len(batch)), err)
		}

		if len(resp.Data) != len(batch) {
			return nil, domain.NewEmbeddingError(
				fmt.Sprintf("openai returned %d embeddings for %d inputs", len(resp.Data), len(batch)), nil)
		}

		for _, item := range resp.Data {
			vectors = append(vectors, item.Embedding)
		}
	}

	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
