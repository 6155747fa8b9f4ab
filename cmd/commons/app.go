package main

import (
	"context"
	"fmt"

	"github.com/xhad/commons/internal/types"
	"github.com/xhad/commons/pkg/assistant"
	"github.com/xhad/commons/pkg/community"
	"github.com/xhad/commons/pkg/config"
	"github.com/xhad/commons/pkg/ingest"
	"github.com/xhad/commons/pkg/llm"
	"github.com/xhad/commons/pkg/notify"
	"github.com/xhad/commons/pkg/processor"
	"github.com/xhad/commons/pkg/prompt"
	"github.com/xhad/commons/pkg/retriever"
	"github.com/xhad/commons/pkg/scraper"
	"github.com/xhad/commons/pkg/store"
)

// hooks receive progress from long running ingestion.
type hooks struct {
	onPage  func(url string)
	onChunk func(done, total int)
}

// app holds the wired services shared by every command.
type app struct {
	config    *config.Config
	store     types.Store
	assistant *assistant.Assistant
	ingester  *ingest.Ingester
	community *community.Service
	queue     *notify.Queue
}

func newApp(ctx context.Context, cfg *config.Config, notifier notify.Notifier, h hooks) (*app, error) {
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	sources := retriever.Sources{
		Documents: st.Documents(),
		Messages:  st.Messages(),
		Names:     st,
	}
	if mixed, ok := st.(types.MixedSearcher); ok {
		sources.Mixed = mixed
	}

	r := retriever.NewWithConfig(retriever.RetrieverConfig{
		Documents:       retriever.CorpusConfig(cfg.Retrieval.Documents),
		Messages:        retriever.CorpusConfig(cfg.Retrieval.Messages),
		MaxContextItems: cfg.Retrieval.MaxContextItems,
		SearchTimeout:   cfg.Retrieval.SearchTimeout,
		Unified:         cfg.Retrieval.Unified,
		FallbackAuthor:  cfg.Retrieval.FallbackAuthor,
	}, embedder, sources)

	prompts := prompt.NewWithConfig(prompt.BuilderConfig{
		AssistantName: cfg.Prompt.AssistantName,
		CommunityName: cfg.Prompt.CommunityName,
		MaxChars:      cfg.Prompt.MaxChars,
	})

	pages := scraper.NewWithConfig(scraper.ScraperConfig{
		MaxDepth:          cfg.Scraper.MaxDepth,
		MaxPages:          cfg.Scraper.MaxPages,
		RateLimit:         cfg.Scraper.RateLimit,
		IgnorePatterns:    cfg.Scraper.IgnorePatterns,
		AllowedExtensions: cfg.Scraper.AllowedExtensions,
		OnProgress:        h.onPage,
	})

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		MaxTokensPerChunk: cfg.Processor.MaxTokensPerChunk,
		MaxChunks:         cfg.Processor.MaxChunks,
	})

	ingester := ingest.NewWithConfig(ingest.IngesterConfig{
		Concurrency: cfg.Embedding.Concurrency,
		EmbedRate:   cfg.Embedding.RateLimit,
		OnProgress:  h.onChunk,
	}, proc, embedder, st, st.Documents(), pages)

	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	queue := notify.NewQueue(notify.QueueConfig{
		Size:       cfg.Notify.QueueSize,
		Workers:    cfg.Notify.Workers,
		MaxRetries: cfg.Notify.MaxRetries,
	}, notifier)

	return &app{
		config:    cfg,
		store:     st,
		assistant: assistant.New(r, prompts, chatEngine),
		ingester:  ingester,
		community: community.NewService(st, embedder, queue),
		queue:     queue,
	}, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (types.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(cfg.VectorDim), nil
	case config.DriverPostgres:
		vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: cfg.URL,
			VectorDim:  cfg.VectorDim,
			IndexLists: cfg.IndexLists,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		return vs, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Close drains pending notifications and releases the store.
func (a *app) Close(ctx context.Context) {
	_ = a.queue.Close(ctx)
	a.store.Close()
}
