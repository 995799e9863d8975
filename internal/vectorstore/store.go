// Package vectorstore persists embedded chunks per knowledge base and
// answers similarity-search queries by scanning, scoring, and ranking them.
package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/corpuslabs/corpusd/internal/domain"
)

// KeyPrefix namespaces vector arenas in the underlying persistence medium.
const KeyPrefix = "vector:"

// Key derives the arena key for a knowledge id.
func Key(knowledgeID string) string {
	return KeyPrefix + knowledgeID
}

// Arena is the persistence boundary: a keyed record arena. Records under a
// key are addressed by insertion order; deletion is a filtered rewrite of
// the whole arena, never in-place mutation. Get on an absent key returns an
// empty slice, not an error.
type Arena interface {
	Get(ctx context.Context, key string) ([]domain.VectorRecord, error)
	Put(ctx context.Context, key string, records []domain.VectorRecord) error
	Delete(ctx context.Context, key string) error
}

// Filter is an optional predicate over a record's content and metadata.
type Filter func(content string, metadata map[string]any) bool

// Match pairs a record with its similarity score for one query.
type Match struct {
	Record domain.VectorRecord
	Score  float64
}

// Store is a thin algorithmic layer over an Arena. Records are immutable
// once written; the only required write discipline is one writer sequence
// per knowledge id, which the store backstops with a single mutex around
// read-modify-write cycles.
type Store struct {
	arena Arena
	mu    sync.Mutex
}

func New(arena Arena) *Store {
	return &Store{arena: arena}
}

// Insert appends records under the knowledge id. It never overwrites or
// deduplicates; re-ingesting a source adds records, deletion by source id
// removes them.
func (s *Store) Insert(ctx context.Context, knowledgeID string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(knowledgeID)
	existing, err := s.arena.Get(ctx, key)
	if err != nil {
		return domain.NewPersistenceError("failed to read vector arena", err)
	}

	combined := make([]domain.VectorRecord, 0, len(existing)+len(records))
	combined = append(combined, existing...)
	combined = append(combined, records...)

	if err := s.arena.Put(ctx, key, combined); err != nil {
		return domain.NewPersistenceError("failed to write vector arena", err)
	}
	return nil
}

// SimilaritySearch loads every record under the knowledge id, drops those
// the filter rejects, scores the rest by cosine similarity against the
// query vector, and returns the top k in descending score order. Equal
// scores keep their insertion order. Fewer than k records is not an error;
// an empty knowledge base yields an empty result.
func (s *Store) SimilaritySearch(ctx context.Context, knowledgeID string, query []float32, k int, filter Filter) ([]Match, error) {
	records, err := s.arena.Get(ctx, Key(knowledgeID))
	if err != nil {
		return nil, domain.NewPersistenceError("failed to read vector arena", err)
	}

	matches := make([]Match, 0, len(records))
	for _, rec := range records {
		if filter != nil && !filter(rec.Content, rec.Metadata) {
			continue
		}
		matches = append(matches, Match{
			Record: rec,
			Score:  CosineSimilarity(query, rec.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if k < 0 {
		k = 0
	}
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// DeleteSource removes every record under the knowledge id tagged with the
// source id. A no-op if none match; idempotent.
func (s *Store) DeleteSource(ctx context.Context, knowledgeID, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(knowledgeID)
	records, err := s.arena.Get(ctx, key)
	if err != nil {
		return domain.NewPersistenceError("failed to read vector arena", err)
	}

	kept := make([]domain.VectorRecord, 0, len(records))
	for _, rec := range records {
		if rec.SourceID != sourceID {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		return nil
	}

	if err := s.arena.Put(ctx, key, kept); err != nil {
		return domain.NewPersistenceError("failed to rewrite vector arena", err)
	}
	return nil
}

// DeleteAll removes every record under the knowledge id. Idempotent.
func (s *Store) DeleteAll(ctx context.Context, knowledgeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.arena.Delete(ctx, Key(knowledgeID)); err != nil {
		return domain.NewPersistenceError("failed to delete vector arena", err)
	}
	return nil
}

// Count returns the number of records stored under the knowledge id.
func (s *Store) Count(ctx context.Context, knowledgeID string) (int, error) {
	records, err := s.arena.Get(ctx, Key(knowledgeID))
	if err != nil {
		return 0, domain.NewPersistenceError("failed to read vector arena", err)
	}
	return len(records), nil
}

// Dimension reports the embedding dimensionality of the records stored
// under the knowledge id, or zero when none exist. All records under one id
// share it by construction.
func (s *Store) Dimension(ctx context.Context, knowledgeID string) (int, error) {
	records, err := s.arena.Get(ctx, Key(knowledgeID))
	if err != nil {
		return 0, domain.NewPersistenceError("failed to read vector arena", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	return len(records[0].Embedding), nil
}

// CosineSimilarity is dot(a,b) / (|a|*|b|). A zero vector on either side
// scores 0 rather than producing NaN, so degenerate embeddings rank last
// instead of crashing the scan.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
