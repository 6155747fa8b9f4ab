package types

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when a text that must carry content is blank.
	ErrEmptyInput = errors.New("empty input")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRecord is returned by stores when a record fails validation
	// at the storage boundary.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrNoChunksIndexed is returned when a document had text but none of
	// its chunks could be embedded.
	ErrNoChunksIndexed = errors.New("no chunks could be indexed")

	// ErrQueueFull is returned when a background task is rejected because
	// the work queue has no free slot.
	ErrQueueFull = errors.New("queue full")
)

// EmbeddingError reports that the embedding provider could not produce a
// vector, either for a query or for an ingested chunk.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// SearchError reports that one corpus backend failed or timed out.
type SearchError struct {
	Corpus string
	Err    error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search in %s failed: %v", e.Corpus, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// CompletionError reports that the language model failed to generate a reply.
// It is fatal to the chat turn.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed: %v", e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }
