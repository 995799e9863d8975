package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewKnowledge_StartsPending(t *testing.T) {
	now := time.Now().UTC()
	k := NewKnowledge("kb-1", "Docs", "openai:text-embedding-3-small", nil, now)

	assert.Equal(t, KnowledgeStatusPending, k.Status)
	assert.Equal(t, now, k.CreatedAt)
	assert.Equal(t, now, k.UpdatedAt)
}

func TestKnowledge_Transition_LegalPaths(t *testing.T) {
	k := NewKnowledge("kb-1", "Docs", "openai:text-embedding-3-small", nil, time.Now().UTC())

	assert.NoError(t, k.Transition(KnowledgeStatusProcessing))
	assert.NoError(t, k.Transition(KnowledgeStatusFinished))

	// Explicit re-trigger after completion.
	assert.NoError(t, k.Transition(KnowledgeStatusProcessing))
	assert.NoError(t, k.Transition(KnowledgeStatusFailed))

	// Explicit reprocess after failure.
	assert.NoError(t, k.Transition(KnowledgeStatusProcessing))
}

func TestKnowledge_Transition_IllegalPaths(t *testing.T) {
	k := NewKnowledge("kb-1", "Docs", "openai:text-embedding-3-small", nil, time.Now().UTC())

	// pending -> finished skips processing
	err := k.Transition(KnowledgeStatusFinished)
	assert.Error(t, err)
	assert.Equal(t, KnowledgeStatusPending, k.Status)

	assert.NoError(t, k.Transition(KnowledgeStatusProcessing))

	// processing never reverts to pending
	err = k.Transition(KnowledgeStatusPending)
	assert.Error(t, err)
	assert.Equal(t, KnowledgeStatusProcessing, k.Status)

	domainErr, ok := err.(*DomainError)
	assert.True(t, ok)
	assert.Equal(t, ErrCodeValidation, domainErr.Code)
}

func TestNewSource_UnknownTypeFallsBack(t *testing.T) {
	s := NewSource("src-1", "notes.md", SourceType("markdown"), "text:hello")
	assert.Equal(t, SourceTypeFile, s.Type)

	s = NewSource("src-2", "report.pdf", SourceTypePDF, "s3://bucket/report.pdf")
	assert.Equal(t, SourceTypePDF, s.Type)
}

func TestKnowledge_RemoveSource(t *testing.T) {
	sources := []Source{
		NewSource("src-1", "a.txt", SourceTypeTXT, "text:a"),
		NewSource("src-2", "b.txt", SourceTypeTXT, "text:b"),
	}
	k := NewKnowledge("kb-1", "Docs", "openai:text-embedding-3-small", sources, time.Now().UTC())

	k.RemoveSource("src-1")
	assert.Len(t, k.Sources, 1)
	assert.Equal(t, "src-2", k.Sources[0].ID)

	// Removing twice is a no-op.
	k.RemoveSource("src-1")
	assert.Len(t, k.Sources, 1)

	_, found := k.SourceByID("src-1")
	assert.False(t, found)
	_, found = k.SourceByID("src-2")
	assert.True(t, found)
}

func TestValidateKnowledge(t *testing.T) {
	now := time.Now().UTC()

	valid := NewKnowledge("kb-1", "Docs", "ollama:nomic-embed-text", []Source{
		NewSource("src-1", "a.txt", SourceTypeTXT, "text:a"),
	}, now)
	assert.NoError(t, ValidateKnowledge(valid))

	assert.Error(t, ValidateKnowledge(nil))

	missingModel := NewKnowledge("kb-1", "Docs", "", nil, now)
	assert.Error(t, ValidateKnowledge(missingModel))

	badSource := NewKnowledge("kb-1", "Docs", "ollama:nomic-embed-text", []Source{
		{ID: "src-1", Filename: "a.txt", Type: SourceTypeTXT, Content: ""},
	}, now)
	assert.Error(t, ValidateKnowledge(badSource))
}
