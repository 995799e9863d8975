package domain

import (
	"fmt"
	"time"
)

// SourceType represents the format of an ingested source document
type SourceType string

const (
	SourceTypePDF  SourceType = "pdf"
	SourceTypeCSV  SourceType = "csv"
	SourceTypeDOCX SourceType = "docx"
	SourceTypeTXT  SourceType = "txt"
	SourceTypeFile SourceType = "file"
)

// KnowledgeStatus represents the indexing status of a knowledge base
type KnowledgeStatus string

const (
	KnowledgeStatusPending    KnowledgeStatus = "pending"
	KnowledgeStatusProcessing KnowledgeStatus = "processing"
	KnowledgeStatusFinished   KnowledgeStatus = "finished"
	KnowledgeStatusFailed     KnowledgeStatus = "failed"
)

// Source is one ingested document belonging to a knowledge base.
// Content is an opaque reference resolved by the loader layer: an inline
// "text:" payload, a local file path, or an "s3://bucket/key" object.
type Source struct {
	ID       string
	Filename string
	Type     SourceType
	Content  string
}

// Knowledge is a named collection of sources indexed and searched together.
// EmbeddingModel is fixed at creation time; every vector stored under this
// knowledge id was produced by that model. Changing the model means creating
// a new Knowledge and re-embedding, never mutating in place.
type Knowledge struct {
	ID             string
	Title          string
	EmbeddingModel string
	Status         KnowledgeStatus
	Sources        []Source
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewKnowledge creates a Knowledge in the pending state.
func NewKnowledge(id, title, embeddingModel string, sources []Source, createdAt time.Time) *Knowledge {
	return &Knowledge{
		ID:             id,
		Title:          title,
		EmbeddingModel: embeddingModel,
		Status:         KnowledgeStatusPending,
		Sources:        sources,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

// NewSource creates a Source, normalizing unknown types to the file fallback.
func NewSource(id, filename string, sourceType SourceType, content string) Source {
	if !isValidSourceType(sourceType) {
		sourceType = SourceTypeFile
	}
	return Source{
		ID:       id,
		Filename: filename,
		Type:     sourceType,
		Content:  content,
	}
}

// CanTransition reports whether moving from the current status to next is a
// legal state machine step. Processing may be re-entered from failed or
// finished only through an explicit new trigger; there is no path back to
// pending.
func (k *Knowledge) CanTransition(next KnowledgeStatus) bool {
	switch k.Status {
	case KnowledgeStatusPending:
		return next == KnowledgeStatusProcessing
	case KnowledgeStatusProcessing:
		return next == KnowledgeStatusFinished || next == KnowledgeStatusFailed
	case KnowledgeStatusFinished, KnowledgeStatusFailed:
		return next == KnowledgeStatusProcessing
	}
	return false
}

// Transition advances the status, enforcing the state machine.
func (k *Knowledge) Transition(next KnowledgeStatus) error {
	if !k.CanTransition(next) {
		return NewDomainError(ErrCodeValidation,
			fmt.Sprintf("illegal status transition %s -> %s", k.Status, next))
	}
	k.Status = next
	return nil
}

// SourceByID returns the source with the given id, if present.
func (k *Knowledge) SourceByID(sourceID string) (Source, bool) {
	for _, s := range k.Sources {
		if s.ID == sourceID {
			return s, true
		}
	}
	return Source{}, false
}

// RemoveSource drops the source with the given id from the source list.
// Removing an absent source is a no-op.
func (k *Knowledge) RemoveSource(sourceID string) {
	kept := k.Sources[:0]
	for _, s := range k.Sources {
		if s.ID != sourceID {
			kept = append(kept, s)
		}
	}
	k.Sources = kept
}

// ValidateKnowledge validates a Knowledge instance
func ValidateKnowledge(k *Knowledge) error {
	if k == nil {
		return fmt.Errorf("knowledge cannot be nil")
	}

	if k.ID == "" {
		return fmt.Errorf("knowledge ID is required")
	}

	if k.Title == "" {
		return fmt.Errorf("knowledge Title is required")
	}

	if k.EmbeddingModel == "" {
		return fmt.Errorf("knowledge EmbeddingModel is required")
	}

	if !isValidKnowledgeStatus(k.Status) {
		return fmt.Errorf("knowledge Status is invalid: %s", k.Status)
	}

	for _, s := range k.Sources {
		if err := ValidateSource(s); err != nil {
			return err
		}
	}

	return nil
}

// ValidateSource validates a Source instance
func ValidateSource(s Source) error {
	if s.ID == "" {
		return fmt.Errorf("source ID is required")
	}

	if s.Content == "" {
		return fmt.Errorf("source Content reference is required")
	}

	if !isValidSourceType(s.Type) {
		return fmt.Errorf("source Type is invalid: %s", s.Type)
	}

	return nil
}

// isValidKnowledgeStatus checks if a KnowledgeStatus is valid
func isValidKnowledgeStatus(s KnowledgeStatus) bool {
	switch s {
	case KnowledgeStatusPending, KnowledgeStatusProcessing,
		KnowledgeStatusFinished, KnowledgeStatusFailed:
		return true
	}
	return false
}

// isValidSourceType checks if a SourceType is valid
func isValidSourceType(t SourceType) bool {
	switch t {
	case SourceTypePDF, SourceTypeCSV, SourceTypeDOCX, SourceTypeTXT, SourceTypeFile:
		return true
	}
	return false
}
