package models

import "time"

// SourceType identifies the corpus a retrieval candidate was drawn from.
type SourceType string

const (
	SourceDocument SourceType = "document"
	SourceMessage  SourceType = "message"
)

// CorpusQuery is a single threshold-limited similarity query against one corpus.
type CorpusQuery struct {
	Embedding []float32
	Threshold float64
	Limit     int
}

// SearchHit is a stored record matched by a similarity search.
type SearchHit struct {
	ID        string
	OwnerID   string
	Text      string
	Score     float64
	CreatedAt time.Time
	Metadata  map[string]interface{}
}

// RetrievalCandidate is the in-memory projection of a hit used while building
// the assistant context. It is never persisted.
type RetrievalCandidate struct {
	SourceType SourceType
	Text       string
	Score      float64
	AuthorID   string
	AuthorName string
	CreatedAt  time.Time
}
