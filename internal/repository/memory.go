package repository

import (
	"context"
	"sync"

	"github.com/corpuslabs/corpusd/internal/domain"
)

// MemoryArena is an in-memory vector arena, used for tests and for
// throwaway installations that do not need vectors to outlive the process.
type MemoryArena struct {
	mu     sync.RWMutex
	arenas map[string][]domain.VectorRecord
}

func NewMemoryArena() *MemoryArena {
	return &MemoryArena{arenas: make(map[string][]domain.VectorRecord)}
}

func (a *MemoryArena) Get(ctx context.Context, key string) ([]domain.VectorRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	records := a.arenas[key]
	out := make([]domain.VectorRecord, len(records))
	copy(out, records)
	return out, nil
}

func (a *MemoryArena) Put(ctx context.Context, key string, records []domain.VectorRecord) error {
	stored := make([]domain.VectorRecord, len(records))
	copy(stored, records)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.arenas[key] = stored
	return nil
}

func (a *MemoryArena) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.arenas, key)
	return nil
}

// MemoryKnowledgeRepository is the in-memory knowledge record store.
type MemoryKnowledgeRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.Knowledge
}

func NewMemoryKnowledgeRepository() *MemoryKnowledgeRepository {
	return &MemoryKnowledgeRepository{items: make(map[string]*domain.Knowledge)}
}

func (r *MemoryKnowledgeRepository) Create(ctx context.Context, k *domain.Knowledge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[k.ID] = cloneKnowledge(k)
	return nil
}

func (r *MemoryKnowledgeRepository) GetByID(ctx context.Context, id string) (*domain.Knowledge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.items[id]
	if !ok {
		return nil, domain.ErrKnowledgeNotFound
	}
	return cloneKnowledge(k), nil
}

func (r *MemoryKnowledgeRepository) List(ctx context.Context) ([]*domain.Knowledge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*domain.Knowledge, 0, len(r.items))
	for _, k := range r.items {
		items = append(items, cloneKnowledge(k))
	}
	sortKnowledgeByCreation(items)
	return items, nil
}

func (r *MemoryKnowledgeRepository) Update(ctx context.Context, k *domain.Knowledge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[k.ID]; !ok {
		return domain.ErrKnowledgeNotFound
	}
	r.items[k.ID] = cloneKnowledge(k)
	return nil
}

// Delete removes the knowledge record. Deleting an absent record is a no-op
// so cascade deletion stays idempotent.
func (r *MemoryKnowledgeRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func cloneKnowledge(k *domain.Knowledge) *domain.Knowledge {
	out := *k
	out.Sources = make([]domain.Source, len(k.Sources))
	copy(out.Sources, k.Sources)
	return &out
}
