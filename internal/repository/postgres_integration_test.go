package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/corpuslabs/corpusd/internal/domain"
	"github.com/corpuslabs/corpusd/internal/testutil"
	"github.com/corpuslabs/corpusd/internal/vectorstore"
	"github.com/jackc/pgx/v5/pgxpool"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() {
		_ = pc.Terminate(context.Background())
	})

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresKnowledgeRepository_CRUD(t *testing.T) {
	pool := setupPostgres(t)
	repo := NewPostgresKnowledgeRepository(pool)
	ctx := context.Background()

	k := domain.NewKnowledge("k-1", "release notes", "openai:text-embedding-3-small",
		[]domain.Source{
			domain.NewSource("s-1", "a.txt", domain.SourceTypeTXT, "text:alpha"),
		}, time.Now().UTC().Truncate(time.Microsecond))

	assert.NoError(t, repo.Create(ctx, k))

	got, err := repo.GetByID(ctx, "k-1")
	assert.NoError(t, err)
	assert.Equal(t, k.Title, got.Title)
	assert.Equal(t, k.EmbeddingModel, got.EmbeddingModel)
	assert.Equal(t, domain.KnowledgeStatusPending, got.Status)
	assert.Len(t, got.Sources, 1)
	assert.Equal(t, "s-1", got.Sources[0].ID)

	assert.NoError(t, got.Transition(domain.KnowledgeStatusProcessing))
	got.Sources = append(got.Sources, domain.NewSource("s-2", "b.csv", domain.SourceTypeCSV, "text:x,y"))
	got.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	assert.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, "k-1")
	assert.NoError(t, err)
	assert.Equal(t, domain.KnowledgeStatusProcessing, got.Status)
	assert.Len(t, got.Sources, 2)

	items, err := repo.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, items, 1)

	assert.NoError(t, repo.Delete(ctx, "k-1"))
	_, err = repo.GetByID(ctx, "k-1")
	assert.ErrorIs(t, err, domain.ErrKnowledgeNotFound)

	// Updating a deleted record reports not found.
	assert.ErrorIs(t, repo.Update(ctx, got), domain.ErrKnowledgeNotFound)
}

func TestPostgresArena_RoundTrip(t *testing.T) {
	pool := setupPostgres(t)
	arena := NewPostgresArena(pool)
	ctx := context.Background()

	key := vectorstore.Key("k-1")
	records := []domain.VectorRecord{
		{Content: "first", Embedding: []float32{1, 0, 0}, SourceID: "s-1",
			Metadata: map[string]any{"filename": "a.txt", "chunk_index": float64(0)}},
		{Content: "second", Embedding: []float32{0, 1, 0}, SourceID: "s-1"},
		{Content: "third", Embedding: []float32{0, 0, 1}, SourceID: "s-2"},
	}

	assert.NoError(t, arena.Put(ctx, key, records))

	got, err := arena.Get(ctx, key)
	assert.NoError(t, err)
	assert.Len(t, got, 3)
	// Insertion order survives the round trip.
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "second", got[1].Content)
	assert.Equal(t, "third", got[2].Content)
	assert.Equal(t, []float32{1, 0, 0}, got[0].Embedding)
	assert.Equal(t, "a.txt", got[0].Metadata["filename"])
	assert.Equal(t, "s-2", got[2].SourceID)

	// Rewrite replaces, never appends.
	assert.NoError(t, arena.Put(ctx, key, records[:1]))
	got, err = arena.Get(ctx, key)
	assert.NoError(t, err)
	assert.Len(t, got, 1)

	// Absent keys read as empty, and keys are independent.
	other, err := arena.Get(ctx, vectorstore.Key("other"))
	assert.NoError(t, err)
	assert.Empty(t, other)

	assert.NoError(t, arena.Delete(ctx, key))
	got, err = arena.Get(ctx, key)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestPostgresArena_BacksVectorStore(t *testing.T) {
	pool := setupPostgres(t)
	store := vectorstore.New(NewPostgresArena(pool))
	ctx := context.Background()

	records := []domain.VectorRecord{
		{Content: "east", Embedding: []float32{1, 0}, SourceID: "s-1"},
		{Content: "north", Embedding: []float32{0, 1}, SourceID: "s-2"},
	}
	assert.NoError(t, store.Insert(ctx, "k-1", records))

	matches, err := store.SimilaritySearch(ctx, "k-1", []float32{0, 1}, 1, nil)
	assert.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Equal(t, "north", matches[0].Record.Content)

	assert.NoError(t, store.DeleteSource(ctx, "k-1", "s-2"))
	count, err := store.Count(ctx, "k-1")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
