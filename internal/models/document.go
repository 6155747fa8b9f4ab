package models

import "time"

// Document is an uploaded library document. Content always holds the full
// extracted text, even when only a prefix of it is indexed for search.
type Document struct {
	ID          string
	OwnerID     string
	Title       string
	Content     string
	StoragePath string
	CreatedAt   time.Time
	Metadata    map[string]interface{}
}

// DocumentChunk is a bounded, sentence-aligned span of a Document together
// with its embedding. Chunks are owned by their document and removed with it.
type DocumentChunk struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// ProcessedDocument is a document split into the chunks that will be indexed.
type ProcessedDocument struct {
	Document
	Chunks []string
	// Truncated reports that the chunk list was capped and the tail of the
	// document is stored but not searchable.
	Truncated bool
}
