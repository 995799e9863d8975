package service

import (
	"maps"

	"github.com/corpuslabs/corpusd/internal/domain"
)

// ChunkConfig controls how source documents are split before embedding.
// Sizes are in runes.
type ChunkConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Validate rejects chunk parameters the splitter cannot honor. Overlap must
// leave the window room to advance.
func (c ChunkConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return domain.NewDomainError(domain.ErrCodeConfiguration, "chunk size must be positive")
	}
	if c.ChunkOverlap < 0 {
		return domain.NewDomainError(domain.ErrCodeConfiguration, "chunk overlap must not be negative")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return domain.ErrInvalidChunkConfig
	}
	return nil
}

// Splitter deterministically slices loader documents into overlapping
// fixed-size chunks. Splitting is a pure function of its input: no
// normalization, no boundary seeking, so the suffix of chunk i always equals
// the prefix of chunk i+1 for the configured overlap.
type Splitter struct {
	cfg ChunkConfig
}

// NewSplitter creates a Splitter, validating the chunk configuration up
// front so splitting itself can never fail.
func NewSplitter(cfg ChunkConfig) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{cfg: cfg}, nil
}

// SplitDocuments chunks each document in order. Chunk order within a
// document follows text order; parent metadata is copied verbatim onto every
// chunk.
func (s *Splitter) SplitDocuments(docs []domain.Document) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(docs))
	for _, doc := range docs {
		for i, text := range s.splitText(doc.PageContent) {
			chunks = append(chunks, domain.Chunk{
				Content:  text,
				Index:    i,
				Metadata: maps.Clone(doc.Metadata),
			})
		}
	}
	return chunks
}

// splitText slides a fixed window over the rune sequence. A document no
// longer than the window yields itself; an empty document yields nothing.
func (s *Splitter) splitText(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= s.cfg.ChunkSize {
		return []string{text}
	}

	parts := make([]string, 0, len(runes)/(s.cfg.ChunkSize-s.cfg.ChunkOverlap)+1)
	start := 0
	for {
		end := start + s.cfg.ChunkSize
		if end >= len(runes) {
			parts = append(parts, string(runes[start:]))
			return parts
		}
		parts = append(parts, string(runes[start:end]))
		start = end - s.cfg.ChunkOverlap
	}
}
