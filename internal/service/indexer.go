package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corpuslabs/corpusd/internal/domain"
	"github.com/corpuslabs/corpusd/internal/embedding"
	"github.com/corpuslabs/corpusd/internal/notify"
	"github.com/corpuslabs/corpusd/internal/telemetry"
	"github.com/corpuslabs/corpusd/internal/vectorstore"
)

// KnowledgeRepository defines the repository interface for knowledge
// record persistence
type KnowledgeRepository interface {
	Create(ctx context.Context, k *domain.Knowledge) error
	GetByID(ctx context.Context, id string) (*domain.Knowledge, error)
	List(ctx context.Context) ([]*domain.Knowledge, error)
	Update(ctx context.Context, k *domain.Knowledge) error
	Delete(ctx context.Context, id string) error
}

// SourceLoader resolves a source's content reference and parses it into
// documents.
type SourceLoader interface {
	Load(ctx context.Context, source domain.Source) ([]domain.Document, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// Indexer owns the knowledge lifecycle: create, source management, the
// processing pipeline that turns sources into vectors, and cascade deletion.
type Indexer struct {
	repo      KnowledgeRepository
	store     *vectorstore.Store
	splitter  *Splitter
	providers *embedding.Registry
	loader    SourceLoader
	notifier  notify.Notifier
	uuidGen   UUIDGenerator
}

// NewIndexer creates a new Indexer instance
func NewIndexer(
	repo KnowledgeRepository,
	store *vectorstore.Store,
	splitter *Splitter,
	providers *embedding.Registry,
	loader SourceLoader,
	notifier notify.Notifier,
) *Indexer {
	return &Indexer{
		repo:      repo,
		store:     store,
		splitter:  splitter,
		providers: providers,
		loader:    loader,
		notifier:  notifier,
		uuidGen:   &DefaultUUIDGenerator{},
	}
}

// NewIndexerWithUUIDGen creates a new Indexer with a custom UUID generator
// (for testing)
func NewIndexerWithUUIDGen(
	repo KnowledgeRepository,
	store *vectorstore.Store,
	splitter *Splitter,
	providers *embedding.Registry,
	loader SourceLoader,
	notifier notify.Notifier,
	uuidGen UUIDGenerator,
) *Indexer {
	idx := NewIndexer(repo, store, splitter, providers, loader, notifier)
	idx.uuidGen = uuidGen
	return idx
}

// SourceInput describes one source to attach to a knowledge base.
type SourceInput struct {
	Filename string
	Type     string
	Content  string
}

// CreateKnowledgeInput represents the input for creating a knowledge base
type CreateKnowledgeInput struct {
	Title          string
	EmbeddingModel string
	Sources        []SourceInput
}

// CreateKnowledge creates a knowledge base in the pending state. The
// embedding model is resolved against the registry up front so a typo fails
// the create call instead of the first processing run.
func (s *Indexer) CreateKnowledge(ctx context.Context, input CreateKnowledgeInput) (*domain.Knowledge, error) {
	ctx, span := telemetry.StartSpan(ctx, "Indexer.CreateKnowledge", telemetry.SpanAttributes{
		Operation: "create",
	})
	defer span.End()

	if input.Title == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "title is required")
	}
	if _, err := s.providers.Resolve(input.EmbeddingModel); err != nil {
		return nil, err
	}

	sources := make([]domain.Source, 0, len(input.Sources))
	for _, in := range input.Sources {
		src := domain.NewSource(s.uuidGen.NewString(), in.Filename, domain.SourceType(in.Type), in.Content)
		if err := domain.ValidateSource(src); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid source", err)
		}
		sources = append(sources, src)
	}

	knowledge := domain.NewKnowledge(s.uuidGen.NewString(), input.Title, input.EmbeddingModel, sources, time.Now().UTC())
	if err := domain.ValidateKnowledge(knowledge); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid knowledge", err)
	}

	if err := s.repo.Create(ctx, knowledge); err != nil {
		return nil, err
	}
	return knowledge, nil
}

// GetKnowledge retrieves a knowledge base by ID
func (s *Indexer) GetKnowledge(ctx context.Context, id string) (*domain.Knowledge, error) {
	return s.repo.GetByID(ctx, id)
}

// ListKnowledge retrieves all knowledge bases ordered by creation time
func (s *Indexer) ListKnowledge(ctx context.Context) ([]*domain.Knowledge, error) {
	return s.repo.List(ctx)
}

// DeleteKnowledge removes the knowledge record and every vector stored
// under its id. Vectors go first so a crash between the two steps leaves a
// record pointing at an empty arena, not orphaned vectors.
func (s *Indexer) DeleteKnowledge(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "Indexer.DeleteKnowledge", telemetry.SpanAttributes{
		KnowledgeID: id,
		Operation:   "delete",
	})
	defer span.End()

	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteAll(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// AddSource attaches a source to an existing knowledge base. The new source
// is not indexed until the next processing run.
func (s *Indexer) AddSource(ctx context.Context, knowledgeID string, input SourceInput) (domain.Source, error) {
	ctx, span := telemetry.StartSpan(ctx, "Indexer.AddSource", telemetry.SpanAttributes{
		KnowledgeID: knowledgeID,
		Operation:   "add_source",
	})
	defer span.End()

	knowledge, err := s.repo.GetByID(ctx, knowledgeID)
	if err != nil {
		return domain.Source{}, err
	}

	src := domain.NewSource(s.uuidGen.NewString(), input.Filename, domain.SourceType(input.Type), input.Content)
	if err := domain.ValidateSource(src); err != nil {
		return domain.Source{}, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid source", err)
	}

	knowledge.Sources = append(knowledge.Sources, src)
	knowledge.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, knowledge); err != nil {
		return domain.Source{}, err
	}
	return src, nil
}

// DeleteSource detaches a source from the knowledge base and removes its
// vectors in the same call, so retrieval never surfaces chunks of a source
// the record no longer lists.
func (s *Indexer) DeleteSource(ctx context.Context, knowledgeID, sourceID string) error {
	ctx, span := telemetry.StartSpan(ctx, "Indexer.DeleteSource", telemetry.SpanAttributes{
		KnowledgeID: knowledgeID,
		SourceID:    sourceID,
		Operation:   "delete_source",
	})
	defer span.End()

	knowledge, err := s.repo.GetByID(ctx, knowledgeID)
	if err != nil {
		return err
	}
	if _, ok := knowledge.SourceByID(sourceID); !ok {
		return domain.ErrSourceNotFound
	}

	knowledge.RemoveSource(sourceID)
	knowledge.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, knowledge); err != nil {
		return err
	}
	return s.store.DeleteSource(ctx, knowledgeID, sourceID)
}

// Run executes the indexing pipeline for one knowledge base: mark
// processing, re-embed every source, and land on finished or failed. The
// first source failure aborts the run; sources after it are not attempted.
// Implements jobs.Runner.
func (s *Indexer) Run(ctx context.Context, knowledgeID string) error {
	ctx, span := telemetry.StartSpan(ctx, "Indexer.Run", telemetry.SpanAttributes{
		KnowledgeID: knowledgeID,
		Operation:   "process",
	})
	defer span.End()

	knowledge, err := s.repo.GetByID(ctx, knowledgeID)
	if err != nil {
		return err
	}

	if knowledge.Status == domain.KnowledgeStatusProcessing {
		return domain.ErrProcessingInFlight
	}
	if err := knowledge.Transition(domain.KnowledgeStatusProcessing); err != nil {
		return err
	}
	knowledge.UpdatedAt = time.Now().UTC()

	// Persist the processing status before touching any vectors so
	// observers never see indexing happen under a stale status.
	if err := s.repo.Update(ctx, knowledge); err != nil {
		return err
	}

	if err := s.index(ctx, knowledge); err != nil {
		telemetry.CaptureError(ctx, err)
		span.SetError(err)
		s.finish(ctx, knowledge, domain.KnowledgeStatusFailed, err)
		return err
	}

	s.finish(ctx, knowledge, domain.KnowledgeStatusFinished, nil)
	return nil
}

// RecoverStale sweeps knowledge bases stuck in the processing state and
// marks them failed. A persisted processing status with no in-flight run
// means a previous run was interrupted before it could land on a terminal
// status; failed is re-triggerable, processing is not. Called once at
// startup, before any trigger is accepted.
func (s *Indexer) RecoverStale(ctx context.Context) (int, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, k := range items {
		if k.Status != domain.KnowledgeStatusProcessing {
			continue
		}
		cause := domain.NewDomainError(domain.ErrCodeInternalError,
			"processing run interrupted before completion")
		s.finish(ctx, k, domain.KnowledgeStatusFailed, cause)
		recovered++
	}
	return recovered, nil
}

// index re-embeds every source of the knowledge base. A run replaces the
// arena wholesale: earlier vectors are dropped first so a re-run never
// duplicates records.
func (s *Indexer) index(ctx context.Context, knowledge *domain.Knowledge) error {
	provider, err := s.providers.Resolve(knowledge.EmbeddingModel)
	if err != nil {
		return err
	}

	if err := s.store.DeleteAll(ctx, knowledge.ID); err != nil {
		return err
	}

	for _, source := range knowledge.Sources {
		if err := ctx.Err(); err != nil {
			return domain.NewTimeoutError("processing cancelled", err)
		}
		if err := s.indexSource(ctx, knowledge, source, provider); err != nil {
			return err
		}
	}
	return nil
}

func (s *Indexer) indexSource(ctx context.Context, knowledge *domain.Knowledge, source domain.Source, provider embedding.Provider) error {
	ctx, span := telemetry.StartSpan(ctx, "Indexer.indexSource", telemetry.SpanAttributes{
		KnowledgeID: knowledge.ID,
		SourceID:    source.ID,
		Provider:    knowledge.EmbeddingModel,
		Operation:   "index_source",
	})
	defer span.End()

	docs, err := s.loader.Load(ctx, source)
	if err != nil {
		return err
	}

	chunks := s.splitter.SplitDocuments(docs)
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return domain.NewEmbeddingError(
			fmt.Sprintf("backend returned %d vectors for %d chunks", len(vectors), len(chunks)), nil)
	}

	records := make([]domain.VectorRecord, len(chunks))
	for i, c := range chunks {
		meta := c.Metadata
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta["chunk_index"] = c.Index
		records[i] = domain.VectorRecord{
			Content:   c.Content,
			Embedding: vectors[i],
			Metadata:  meta,
			SourceID:  source.ID,
		}
	}

	return s.store.Insert(ctx, knowledge.ID, records)
}

// finish lands the run on its terminal status and notifies. The status write
// must not be lost to the caller's cancellation, so it runs on a fresh
// context.
func (s *Indexer) finish(ctx context.Context, knowledge *domain.Knowledge, status domain.KnowledgeStatus, cause error) {
	writeCtx := context.WithoutCancel(ctx)

	if err := knowledge.Transition(status); err != nil {
		telemetry.CaptureError(writeCtx, err)
		return
	}
	knowledge.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(writeCtx, knowledge); err != nil {
		telemetry.CaptureError(writeCtx, err)
		return
	}

	if status == domain.KnowledgeStatusFinished {
		s.notifier.ProcessingFinished(writeCtx, knowledge)
	} else {
		s.notifier.ProcessingFailed(writeCtx, knowledge, cause)
	}
}
