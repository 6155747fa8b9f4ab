// Package retriever gathers the passages that support an answer from both the
// document library and the community chat.
package retriever

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xhad/commons/internal/logger"
	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/internal/types"
)

const (
	DefaultThreshold       = 0.4
	DefaultLimit           = 8
	DefaultMaxContextItems = 8
	DefaultFallbackAuthor  = "User"

	corpusDocuments = "documents"
	corpusMessages  = "messages"

	nameLookupConcurrency = 8
)

type CorpusConfig struct {
	Threshold float64
	Limit     int
}

type RetrieverConfig struct {
	Documents       CorpusConfig
	Messages        CorpusConfig
	MaxContextItems int
	SearchTimeout   time.Duration
	// Unified answers both corpus queries in one store round trip when the
	// store supports it.
	Unified bool
	// FallbackAuthor labels chat messages whose author has no display name.
	FallbackAuthor string
}

// Sources are the stores a Retriever reads from. Mixed and Names are optional.
type Sources struct {
	Documents types.Corpus
	Messages  types.Corpus
	Mixed     types.MixedSearcher
	Names     types.NameResolver
}

type Retriever struct {
	config   RetrieverConfig
	embedder types.Embedder
	sources  Sources
}

func NewWithConfig(config RetrieverConfig, embedder types.Embedder, sources Sources) *Retriever {
	config.Documents = corpusDefaults(config.Documents)
	config.Messages = corpusDefaults(config.Messages)
	if config.MaxContextItems <= 0 {
		config.MaxContextItems = DefaultMaxContextItems
	}
	if config.SearchTimeout <= 0 {
		config.SearchTimeout = 5 * time.Second
	}
	if config.FallbackAuthor == "" {
		config.FallbackAuthor = DefaultFallbackAuthor
	}

	return &Retriever{
		config:   config,
		embedder: embedder,
		sources:  sources,
	}
}

func corpusDefaults(c CorpusConfig) CorpusConfig {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	return c
}

// Retrieve embeds the query once, searches both corpora and returns the
// merged candidates: documents first, then messages, each group ordered by
// score, the whole list capped at MaxContextItems. Failures never surface to
// the caller; they only shrink the result, down to an empty list.
func (r *Retriever) Retrieve(ctx context.Context, query string) []models.RetrievalCandidate {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("Skipping retrieval: %v", err)
		return []models.RetrievalCandidate{}
	}

	docQuery := models.CorpusQuery{Embedding: vector, Threshold: r.config.Documents.Threshold, Limit: r.config.Documents.Limit}
	msgQuery := models.CorpusQuery{Embedding: vector, Threshold: r.config.Messages.Threshold, Limit: r.config.Messages.Limit}

	var docHits, msgHits []models.SearchHit
	if r.config.Unified && r.sources.Mixed != nil {
		docHits, msgHits = r.searchMixed(ctx, docQuery, msgQuery)
	} else {
		docHits, msgHits = r.searchEach(ctx, docQuery, msgQuery)
	}

	candidates := make([]models.RetrievalCandidate, 0, len(docHits)+len(msgHits))
	for _, h := range docHits {
		candidates = append(candidates, models.RetrievalCandidate{
			SourceType: models.SourceDocument,
			Text:       h.Text,
			Score:      h.Score,
			CreatedAt:  h.CreatedAt,
		})
	}
	for _, h := range msgHits {
		candidates = append(candidates, models.RetrievalCandidate{
			SourceType: models.SourceMessage,
			Text:       h.Text,
			Score:      h.Score,
			AuthorID:   h.OwnerID,
			CreatedAt:  h.CreatedAt,
		})
	}

	if len(candidates) > r.config.MaxContextItems {
		candidates = candidates[:r.config.MaxContextItems]
	}

	r.resolveAuthors(ctx, candidates)

	logger.Debug("Retrieved %d documents and %d messages, kept %d", len(docHits), len(msgHits), len(candidates))
	return candidates
}

// searchEach runs both corpus searches concurrently. A failing corpus
// contributes nothing; the other one is unaffected.
func (r *Retriever) searchEach(ctx context.Context, docQuery, msgQuery models.CorpusQuery) ([]models.SearchHit, []models.SearchHit) {
	var docHits, msgHits []models.SearchHit

	var g errgroup.Group
	g.Go(func() error {
		docHits = r.searchCorpus(ctx, corpusDocuments, r.sources.Documents, docQuery)
		return nil
	})
	g.Go(func() error {
		msgHits = r.searchCorpus(ctx, corpusMessages, r.sources.Messages, msgQuery)
		return nil
	})
	_ = g.Wait()

	return docHits, msgHits
}

func (r *Retriever) searchCorpus(ctx context.Context, name string, corpus types.Corpus, q models.CorpusQuery) []models.SearchHit {
	if corpus == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.SearchTimeout)
	defer cancel()

	hits, err := corpus.SimilaritySearch(ctx, q)
	if err != nil {
		logger.Warn("%v", &types.SearchError{Corpus: name, Err: err})
		return nil
	}
	return bound(hits, q)
}

func (r *Retriever) searchMixed(ctx context.Context, docQuery, msgQuery models.CorpusQuery) ([]models.SearchHit, []models.SearchHit) {
	ctx, cancel := context.WithTimeout(ctx, r.config.SearchTimeout)
	defer cancel()

	docHits, msgHits, err := r.sources.Mixed.SearchMixed(ctx, docQuery, msgQuery)
	if err != nil {
		logger.Warn("%v", &types.SearchError{Corpus: corpusDocuments + "+" + corpusMessages, Err: err})
		return nil, nil
	}
	return bound(docHits, docQuery), bound(msgHits, msgQuery)
}

// bound drops anything a store returned below the threshold or past the limit.
func bound(hits []models.SearchHit, q models.CorpusQuery) []models.SearchHit {
	kept := hits[:0:0]
	for _, h := range hits {
		if h.Score < q.Threshold {
			continue
		}
		if len(kept) == q.Limit {
			break
		}
		kept = append(kept, h)
	}
	return kept
}

// resolveAuthors fills AuthorName on message candidates, looking each
// distinct author up once and concurrently.
func (r *Retriever) resolveAuthors(ctx context.Context, candidates []models.RetrievalCandidate) {
	authors := make(map[string]string)
	for _, c := range candidates {
		if c.SourceType == models.SourceMessage {
			authors[c.AuthorID] = r.config.FallbackAuthor
		}
	}
	if len(authors) == 0 {
		return
	}

	if r.sources.Names != nil {
		ids := make([]string, 0, len(authors))
		for id := range authors {
			ids = append(ids, id)
		}

		var mu sync.Mutex
		g := new(errgroup.Group)
		g.SetLimit(nameLookupConcurrency)

		for _, id := range ids {
			id := id
			g.Go(func() error {
				ctx, cancel := context.WithTimeout(ctx, r.config.SearchTimeout)
				defer cancel()

				name, err := r.sources.Names.Nickname(ctx, id)
				if err != nil {
					logger.Debug("Failed to resolve author %s: %v", id, err)
					return nil
				}
				if name != "" {
					mu.Lock()
					authors[id] = name
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	for i := range candidates {
		if candidates[i].SourceType == models.SourceMessage {
			candidates[i].AuthorName = authors[candidates[i].AuthorID]
		}
	}
}
