package types

import (
	"context"

	"github.com/xhad/commons/internal/models"
)

// Core interfaces

// Embedder maps a text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer generates the assistant reply for a system prompt and conversation.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, history []models.Turn) (string, error)
}

// StreamCompleter is a Completer that can also deliver the reply incrementally.
// The returned error channel receives at most one value and is closed together
// with the chunk channel.
type StreamCompleter interface {
	Completer
	CompleteStream(ctx context.Context, systemPrompt string, history []models.Turn) (<-chan string, <-chan error)
}

// Corpus is one searchable collection of embedded text.
type Corpus interface {
	// UpsertEmbedding stores text with its vector and returns the record id.
	// It is not idempotent; callers must not insert the same record twice.
	UpsertEmbedding(ctx context.Context, ownerID, text string, vector []float32, metadata map[string]interface{}) (string, error)
	// SimilaritySearch returns at most q.Limit hits with score >= q.Threshold,
	// ordered by score descending and, for equal scores, newest first.
	SimilaritySearch(ctx context.Context, q models.CorpusQuery) ([]models.SearchHit, error)
}

// MixedSearcher answers both corpus queries in a single round trip.
type MixedSearcher interface {
	SearchMixed(ctx context.Context, docs, msgs models.CorpusQuery) (docHits, msgHits []models.SearchHit, err error)
}

// NameResolver looks up the nickname of a community member. An unset
// nickname is returned as an empty string without error.
type NameResolver interface {
	Nickname(ctx context.Context, userID string) (string, error)
}

type DocumentRepository interface {
	InsertDocument(ctx context.Context, doc models.Document) (models.Document, error)
	GetDocument(ctx context.Context, id string) (models.Document, error)
	ListDocuments(ctx context.Context, ownerID string) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id, ownerID string) error
	CountChunks(ctx context.Context, documentID string) (int, error)
}

type MessageRepository interface {
	InsertMessage(ctx context.Context, msg models.Message) (models.Message, error)
	ListMessages(ctx context.Context, limit int) ([]models.Message, error)
	ListUnembeddedMessages(ctx context.Context, limit int) ([]models.Message, error)
	SetMessageEmbedding(ctx context.Context, id string, vector []float32) error
	AnonymizeMessages(ctx context.Context, authorID, replacement string) error
}

type ProfileRepository interface {
	NameResolver
	SetNickname(ctx context.Context, userID, nickname string) error
}

// Store is the full persistence surface shared by the postgres and memory backends.
type Store interface {
	DocumentRepository
	MessageRepository
	ProfileRepository
	Documents() Corpus
	Messages() Corpus
	Close()
}
