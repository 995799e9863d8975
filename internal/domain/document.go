package domain

// Document is the unit of text a loader produces from a source: one page,
// row, or whole body, plus whatever metadata the loader attaches.
type Document struct {
	PageContent string
	Metadata    map[string]any
}

// Chunk is a bounded-length slice of a document's text, the unit of
// embedding. Chunks are transient; only their embedded form is persisted.
// Metadata is copied verbatim from the parent document.
type Chunk struct {
	Content  string
	Index    int
	Metadata map[string]any
}

// VectorRecord is the persisted unit: one embedded chunk tagged with the
// source it came from. Records are immutable once written; updates are
// additions and deletions are by source id.
type VectorRecord struct {
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	SourceID  string         `json:"source_id"`
}
