package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/corpuslabs/corpusd/internal/domain"
	"github.com/corpuslabs/corpusd/internal/embedding"
	"github.com/corpuslabs/corpusd/internal/repository"
	"github.com/corpuslabs/corpusd/internal/vectorstore"
)

// directionProvider maps known texts to fixed unit-ish vectors so similarity
// ordering in tests is readable.
type directionProvider struct {
	vectors map[string][]float32
}

func (p *directionProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := p.vectors[t]
		if !ok {
			return nil, errors.New("unexpected text: " + t)
		}
		out[i] = v
	}
	return out, nil
}

func (p *directionProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type retrieverFixture struct {
	retriever *Retriever
	repo      *repository.MemoryKnowledgeRepository
	store     *vectorstore.Store
}

func newRetrieverFixture(t *testing.T, provider embedding.Provider) *retrieverFixture {
	t.Helper()

	repo := repository.NewMemoryKnowledgeRepository()
	store := vectorstore.New(repository.NewMemoryArena())
	providers := embedding.NewRegistry()
	providers.Register(testModel, provider)

	return &retrieverFixture{
		retriever: NewRetriever(repo, store, providers),
		repo:      repo,
		store:     store,
	}
}

func seedFinishedKnowledge(t *testing.T, f *retrieverFixture, id string, records []domain.VectorRecord) {
	t.Helper()
	ctx := context.Background()

	k := domain.NewKnowledge(id, "seeded", testModel, nil, time.Now().UTC())
	assert.NoError(t, k.Transition(domain.KnowledgeStatusProcessing))
	assert.NoError(t, k.Transition(domain.KnowledgeStatusFinished))
	assert.NoError(t, f.repo.Create(ctx, k))
	if len(records) > 0 {
		assert.NoError(t, f.store.Insert(ctx, id, records))
	}
}

func TestRetriever_RanksBySimilarity(t *testing.T) {
	provider := &directionProvider{vectors: map[string][]float32{
		"north": {0, 1, 0},
	}}
	f := newRetrieverFixture(t, provider)

	seedFinishedKnowledge(t, f, "k-1", []domain.VectorRecord{
		{Content: "east", Embedding: []float32{1, 0, 0}, SourceID: "s-1"},
		{Content: "northish", Embedding: []float32{0.2, 0.9, 0}, SourceID: "s-1"},
		{Content: "north exactly", Embedding: []float32{0, 2, 0}, SourceID: "s-2"},
	})

	results, err := f.retriever.Retrieve(context.Background(), "k-1", "north", 2)
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "north exactly", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "northish", results[1].Content)
	assert.Equal(t, "s-2", results[0].SourceID)
}

func TestRetriever_DefaultTopK(t *testing.T) {
	provider := &directionProvider{vectors: map[string][]float32{
		"q": {1, 0, 0},
	}}
	f := newRetrieverFixture(t, provider)

	records := make([]domain.VectorRecord, 6)
	for i := range records {
		records[i] = domain.VectorRecord{Content: "r", Embedding: []float32{1, 0, 0}}
	}
	seedFinishedKnowledge(t, f, "k-1", records)

	results, err := f.retriever.Retrieve(context.Background(), "k-1", "q", 0)
	assert.NoError(t, err)
	assert.Len(t, results, DefaultTopK)
}

func TestRetriever_RejectsUnfinishedKnowledge(t *testing.T) {
	provider := &directionProvider{vectors: map[string][]float32{"q": {1, 0, 0}}}
	f := newRetrieverFixture(t, provider)
	ctx := context.Background()

	for _, status := range []domain.KnowledgeStatus{
		domain.KnowledgeStatusPending,
		domain.KnowledgeStatusProcessing,
		domain.KnowledgeStatusFailed,
	} {
		k := domain.NewKnowledge("k-"+string(status), "t", testModel, nil, time.Now().UTC())
		k.Status = status
		assert.NoError(t, f.repo.Create(ctx, k))

		_, err := f.retriever.Retrieve(ctx, k.ID, "q", 3)
		assert.ErrorIs(t, err, domain.ErrKnowledgeNotReady, "status %s", status)
	}
}

func TestRetriever_EmptyKnowledgeYieldsEmptyResult(t *testing.T) {
	provider := &directionProvider{vectors: map[string][]float32{"q": {1, 0, 0}}}
	f := newRetrieverFixture(t, provider)

	seedFinishedKnowledge(t, f, "k-1", nil)

	results, err := f.retriever.Retrieve(context.Background(), "k-1", "q", 5)
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_DimensionMismatch(t *testing.T) {
	provider := &directionProvider{vectors: map[string][]float32{
		"q": {1, 0},
	}}
	f := newRetrieverFixture(t, provider)

	seedFinishedKnowledge(t, f, "k-1", []domain.VectorRecord{
		{Content: "r", Embedding: []float32{1, 0, 0}},
	})

	_, err := f.retriever.Retrieve(context.Background(), "k-1", "q", 3)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestRetriever_Validation(t *testing.T) {
	provider := &directionProvider{vectors: map[string][]float32{"q": {1, 0, 0}}}
	f := newRetrieverFixture(t, provider)

	_, err := f.retriever.Retrieve(context.Background(), "k-1", "", 3)
	var domainErr *domain.DomainError
	assert.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)

	_, err = f.retriever.Retrieve(context.Background(), "missing", "q", 3)
	assert.ErrorIs(t, err, domain.ErrKnowledgeNotFound)
}
