package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/corpuslabs/corpusd/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresArena stores vector arenas in a pgvector-enabled table. The arena
// key scheme is the same "vector:" prefix the other media use, kept in the
// arena_key column so records stay portable across backends.
type PostgresArena struct {
	pool *pgxpool.Pool
}

func NewPostgresArena(pool *pgxpool.Pool) *PostgresArena {
	return &PostgresArena{pool: pool}
}

func (a *PostgresArena) Get(ctx context.Context, key string) ([]domain.VectorRecord, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT content, embedding, metadata, source_id
		 FROM vector_records WHERE arena_key = $1 ORDER BY position`,
		key,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.VectorRecord
	for rows.Next() {
		var rec domain.VectorRecord
		var embedding pgvector.Vector
		var metadata []byte
		if err := rows.Scan(&rec.Content, &embedding, &metadata, &rec.SourceID); err != nil {
			return nil, err
		}
		rec.Embedding = embedding.Slice()
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode record metadata: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Put rewrites the arena for a key in one transaction, preserving record
// order through the position column.
func (a *PostgresArena) Put(ctx context.Context, key string, records []domain.VectorRecord) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM vector_records WHERE arena_key = $1`, key); err != nil {
		return err
	}

	for i, rec := range records {
		var metadata []byte
		if rec.Metadata != nil {
			metadata, err = json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode record metadata: %w", err)
			}
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO vector_records (arena_key, position, content, embedding, metadata, source_id)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			key, i, rec.Content, pgvector.NewVector(rec.Embedding), metadata, rec.SourceID,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (a *PostgresArena) Delete(ctx context.Context, key string) error {
	_, err := a.pool.Exec(ctx, `DELETE FROM vector_records WHERE arena_key = $1`, key)
	return err
}

// PostgresKnowledgeRepository persists knowledge records with their source
// list as jsonb.
type PostgresKnowledgeRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresKnowledgeRepository(pool *pgxpool.Pool) *PostgresKnowledgeRepository {
	return &PostgresKnowledgeRepository{pool: pool}
}

func (r *PostgresKnowledgeRepository) Create(ctx context.Context, k *domain.Knowledge) error {
	sources, err := json.Marshal(k.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO knowledge (id, title, embedding_model, status, sources, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		k.ID, k.Title, k.EmbeddingModel, k.Status, sources, k.CreatedAt, k.UpdatedAt,
	)
	return err
}

func (r *PostgresKnowledgeRepository) GetByID(ctx context.Context, id string) (*domain.Knowledge, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, title, embedding_model, status, sources, created_at, updated_at
		 FROM knowledge WHERE id = $1`,
		id,
	)
	k, err := scanKnowledge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeNotFound
		}
		return nil, err
	}
	return k, nil
}

func (r *PostgresKnowledgeRepository) List(ctx context.Context) ([]*domain.Knowledge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, embedding_model, status, sources, created_at, updated_at
		 FROM knowledge ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Knowledge
	for rows.Next() {
		k, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, k)
	}
	return items, rows.Err()
}

func (r *PostgresKnowledgeRepository) Update(ctx context.Context, k *domain.Knowledge) error {
	sources, err := json.Marshal(k.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE knowledge SET title = $2, status = $3, sources = $4, updated_at = $5 WHERE id = $1`,
		k.ID, k.Title, k.Status, sources, k.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

func (r *PostgresKnowledgeRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM knowledge WHERE id = $1`, id)
	return err
}

func scanKnowledge(row pgx.Row) (*domain.Knowledge, error) {
	var k domain.Knowledge
	var sources []byte
	if err := row.Scan(&k.ID, &k.Title, &k.EmbeddingModel, &k.Status, &sources, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return nil, err
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &k.Sources); err != nil {
			return nil, fmt.Errorf("failed to decode sources: %w", err)
		}
	}
	return &k, nil
}
