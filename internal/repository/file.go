package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/corpuslabs/corpusd/internal/domain"
)

// FileArena is the default local vector store: one JSON document holding
// every arena, rewritten atomically on change. A single installation owns
// the file; the engine serializes writers per knowledge id above this layer.
type FileArena struct {
	path string
	mu   sync.Mutex
}

func NewFileArena(dataDir string) (*FileArena, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &FileArena{path: filepath.Join(dataDir, "vectors.json")}, nil
}

func (a *FileArena) Get(ctx context.Context, key string) ([]domain.VectorRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	arenas, err := a.load()
	if err != nil {
		return nil, err
	}
	return arenas[key], nil
}

func (a *FileArena) Put(ctx context.Context, key string, records []domain.VectorRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	arenas, err := a.load()
	if err != nil {
		return err
	}
	arenas[key] = records
	return a.save(arenas)
}

func (a *FileArena) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	arenas, err := a.load()
	if err != nil {
		return err
	}
	if _, ok := arenas[key]; !ok {
		return nil
	}
	delete(arenas, key)
	return a.save(arenas)
}

func (a *FileArena) load() (map[string][]domain.VectorRecord, error) {
	data, err := os.ReadFile(a.path)
	if os.IsNotExist(err) {
		return make(map[string][]domain.VectorRecord), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", a.path, err)
	}

	arenas := make(map[string][]domain.VectorRecord)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &arenas); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", a.path, err)
		}
	}
	return arenas, nil
}

func (a *FileArena) save(arenas map[string][]domain.VectorRecord) error {
	return writeFileAtomic(a.path, arenas)
}

// FileKnowledgeRepository persists knowledge records next to the vector
// file, same medium and discipline.
type FileKnowledgeRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileKnowledgeRepository(dataDir string) (*FileKnowledgeRepository, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &FileKnowledgeRepository{path: filepath.Join(dataDir, "knowledge.json")}, nil
}

func (r *FileKnowledgeRepository) Create(ctx context.Context, k *domain.Knowledge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.load()
	if err != nil {
		return err
	}
	items[k.ID] = cloneKnowledge(k)
	return writeFileAtomic(r.path, items)
}

func (r *FileKnowledgeRepository) GetByID(ctx context.Context, id string) (*domain.Knowledge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.load()
	if err != nil {
		return nil, err
	}
	k, ok := items[id]
	if !ok {
		return nil, domain.ErrKnowledgeNotFound
	}
	return k, nil
}

func (r *FileKnowledgeRepository) List(ctx context.Context) ([]*domain.Knowledge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID, err := r.load()
	if err != nil {
		return nil, err
	}
	items := make([]*domain.Knowledge, 0, len(byID))
	for _, k := range byID {
		items = append(items, k)
	}
	sortKnowledgeByCreation(items)
	return items, nil
}

func (r *FileKnowledgeRepository) Update(ctx context.Context, k *domain.Knowledge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := items[k.ID]; !ok {
		return domain.ErrKnowledgeNotFound
	}
	items[k.ID] = cloneKnowledge(k)
	return writeFileAtomic(r.path, items)
}

func (r *FileKnowledgeRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := items[id]; !ok {
		return nil
	}
	delete(items, id)
	return writeFileAtomic(r.path, items)
}

func (r *FileKnowledgeRepository) load() (map[string]*domain.Knowledge, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return make(map[string]*domain.Knowledge), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.path, err)
	}

	items := make(map[string]*domain.Knowledge)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", r.path, err)
		}
	}
	return items, nil
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// never leaves a truncated store behind.
func writeFileAtomic(path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
