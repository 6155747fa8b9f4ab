// Package ingest adds documents to the library: it chunks their text, embeds
// the chunks and stores them in the document corpus.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xhad/commons/internal/logger"
	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/internal/types"
	"github.com/xhad/commons/pkg/processor"
)

type IngesterConfig struct {
	// Concurrency bounds the embedding calls in flight for one document.
	Concurrency int
	// EmbedRate limits embedding calls per second across the ingester; 0 disables it.
	EmbedRate float64
	// OnProgress is called once per chunk after its embedding attempt.
	OnProgress func(done, total int)
}

// Result reports what happened to one added document.
type Result struct {
	DocumentID    string
	TotalChunks   int
	IndexedChunks int
	FailedChunks  int
	// Truncated is set when the document had more chunks than are indexed.
	Truncated bool
}

// PageSource turns a URL into documents.
type PageSource interface {
	Scrape(ctx context.Context, rootURL string) ([]models.Document, error)
}

type Ingester struct {
	config    IngesterConfig
	processor processor.Processor
	embedder  types.Embedder
	documents types.DocumentRepository
	chunks    types.Corpus
	pages     PageSource
	limiter   *rate.Limiter
}

func NewWithConfig(config IngesterConfig, proc processor.Processor, embedder types.Embedder, documents types.DocumentRepository, chunks types.Corpus, pages PageSource) *Ingester {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.EmbedRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.EmbedRate), config.Concurrency)
	}

	return &Ingester{
		config:    config,
		processor: proc,
		embedder:  embedder,
		documents: documents,
		chunks:    chunks,
		pages:     pages,
		limiter:   limiter,
	}
}

// AddDocument stores the document with its full text and indexes up to
// MaxChunks of its chunks. Chunks whose embedding fails are skipped and
// counted. If the text produced chunks but none of them could be indexed, the
// document is removed again and the error wraps types.ErrNoChunksIndexed.
func (in *Ingester) AddDocument(ctx context.Context, ownerID, title, text, storagePath string) (Result, error) {
	processed := in.processor.Process(models.Document{
		OwnerID:     ownerID,
		Title:       title,
		Content:     text,
		StoragePath: storagePath,
	})

	doc, err := in.documents.InsertDocument(ctx, processed.Document)
	if err != nil {
		return Result{}, fmt.Errorf("failed to store document: %w", err)
	}

	result := Result{
		DocumentID:  doc.ID,
		TotalChunks: len(processed.Chunks),
		Truncated:   processed.Truncated,
	}
	if processed.Truncated {
		logger.Info("Document %s exceeds the chunk cap, indexing the first %d chunks", doc.ID, len(processed.Chunks))
	}
	if len(processed.Chunks) == 0 {
		logger.Warn("Document %s has no text to index", doc.ID)
		return result, nil
	}

	vectors, failures := in.embedChunks(ctx, processed.Chunks)

	// Stored in chunk order so chunk records follow the document.
	var lastErr error
	for i, chunk := range processed.Chunks {
		if vectors[i] == nil {
			result.FailedChunks++
			continue
		}

		metadata := map[string]interface{}{"chunk_index": i}
		if _, err := in.chunks.UpsertEmbedding(ctx, doc.ID, chunk, vectors[i], metadata); err != nil {
			logger.Error("Failed to store chunk %d of document %s: %v", i, doc.ID, err)
			result.FailedChunks++
			lastErr = err
			continue
		}
		result.IndexedChunks++
	}

	if result.IndexedChunks == 0 {
		if err := in.documents.DeleteDocument(context.WithoutCancel(ctx), doc.ID, ownerID); err != nil {
			logger.Error("Failed to remove unindexed document %s: %v", doc.ID, err)
		}
		if len(failures) > 0 {
			lastErr = failures[0]
		}
		return result, fmt.Errorf("%w: %w", types.ErrNoChunksIndexed, lastErr)
	}

	if result.FailedChunks > 0 {
		logger.Warn("Indexed %d of %d chunks of document %s", result.IndexedChunks, result.TotalChunks, doc.ID)
	}
	return result, nil
}

// embedChunks embeds the chunks concurrently. A failed chunk leaves a nil
// vector at its index.
func (in *Ingester) embedChunks(ctx context.Context, chunks []string) ([][]float32, []error) {
	vectors := make([][]float32, len(chunks))

	var (
		mu       sync.Mutex
		failures []error
		done     int
	)

	g := new(errgroup.Group)
	g.SetLimit(in.config.Concurrency)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			vector, err := in.embedOne(ctx, chunk)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				logger.Error("Chunk %d embedding error: %v", i, err)
				failures = append(failures, err)
			} else {
				vectors[i] = vector
			}

			done++
			if in.config.OnProgress != nil {
				in.config.OnProgress(done, len(chunks))
			}
			return nil
		})
	}
	_ = g.Wait()

	return vectors, failures
}

func (in *Ingester) embedOne(ctx context.Context, chunk string) ([]float32, error) {
	if err := in.limiter.Wait(ctx); err != nil {
		return nil, &types.EmbeddingError{Err: err}
	}

	vector, err := in.embedder.Embed(ctx, chunk)
	if err != nil {
		var embErr *types.EmbeddingError
		if !errors.As(err, &embErr) {
			err = &types.EmbeddingError{Err: err}
		}
		return nil, err
	}
	return vector, nil
}

// DeleteDocument removes one of the owner's documents with all of its chunks.
func (in *Ingester) DeleteDocument(ctx context.Context, documentID, ownerID string) error {
	if err := in.documents.DeleteDocument(ctx, documentID, ownerID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// IngestURL crawls rootURL and adds every page with text as a document.
// Pages that fail to index are logged and left out of the results.
func (in *Ingester) IngestURL(ctx context.Context, ownerID, rootURL string) ([]Result, error) {
	if in.pages == nil {
		return nil, fmt.Errorf("no page source configured")
	}

	pages, err := in.pages.Scrape(ctx, rootURL)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", rootURL, err)
	}

	var results []Result
	for _, page := range pages {
		if strings.TrimSpace(page.Content) == "" {
			continue
		}

		result, err := in.AddDocument(ctx, ownerID, page.Title, page.Content, page.StoragePath)
		if err != nil {
			logger.Warn("Skipping %s: %v", page.StoragePath, err)
			continue
		}
		results = append(results, result)
	}

	logger.Info("Ingested %d of %d pages from %s", len(results), len(pages), rootURL)
	return results, nil
}
