package service

import (
	"context"

	"github.com/corpuslabs/corpusd/internal/domain"
	"github.com/corpuslabs/corpusd/internal/embedding"
	"github.com/corpuslabs/corpusd/internal/telemetry"
	"github.com/corpuslabs/corpusd/internal/vectorstore"
)

// DefaultTopK is the number of chunks returned when the caller does not ask
// for a specific count.
const DefaultTopK = 4

// RetrievalResult is one retrieved chunk with its similarity score.
type RetrievalResult struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	SourceID string         `json:"source_id"`
	Score    float64        `json:"score"`
}

// Retriever answers similarity queries against finished knowledge bases.
type Retriever struct {
	repo      KnowledgeRepository
	store     *vectorstore.Store
	providers *embedding.Registry
}

// NewRetriever creates a new Retriever instance
func NewRetriever(repo KnowledgeRepository, store *vectorstore.Store, providers *embedding.Registry) *Retriever {
	return &Retriever{
		repo:      repo,
		store:     store,
		providers: providers,
	}
}

// Retrieve embeds the query with the knowledge base's own model and returns
// the top k most similar chunks. Only finished knowledge bases are
// searchable; anything mid-lifecycle is rejected rather than answered from
// partial vectors.
func (r *Retriever) Retrieve(ctx context.Context, knowledgeID, query string, k int) ([]RetrievalResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "Retriever.Retrieve", telemetry.SpanAttributes{
		KnowledgeID: knowledgeID,
		Operation:   "retrieve",
	})
	defer span.End()

	if query == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query is required")
	}
	if k <= 0 {
		k = DefaultTopK
	}

	knowledge, err := r.repo.GetByID(ctx, knowledgeID)
	if err != nil {
		return nil, err
	}
	if knowledge.Status != domain.KnowledgeStatusFinished {
		return nil, domain.ErrKnowledgeNotReady
	}

	provider, err := r.providers.Resolve(knowledge.EmbeddingModel)
	if err != nil {
		return nil, err
	}

	vec, err := provider.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	// A backend that changed its output width since indexing would produce
	// garbage scores; reject it instead.
	dim, err := r.store.Dimension(ctx, knowledgeID)
	if err != nil {
		return nil, err
	}
	if dim != 0 && dim != len(vec) {
		return nil, domain.ErrDimensionMismatch
	}

	matches, err := r.store.SimilaritySearch(ctx, knowledgeID, vec, k, nil)
	if err != nil {
		return nil, err
	}

	results := make([]RetrievalResult, len(matches))
	for i, m := range matches {
		results[i] = RetrievalResult{
			Content:  m.Record.Content,
			Metadata: m.Record.Metadata,
			SourceID: m.Record.SourceID,
			Score:    m.Score,
		}
	}
	return results, nil
}
