package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/commons/internal/types"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type EmbedderConfig struct {
	Provider string
	Model    string
	BaseURL  string // Ollama server URL, or an OpenAI-compatible endpoint
	APIKey   string
	// Dimension, when set, is checked against every returned vector.
	Dimension int
	Timeout   time.Duration
}

// EmbeddingModel is the part of a langchaingo LLM the embedder needs.
type EmbeddingModel interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder turns text into a vector through an embedding model.
type Embedder struct {
	config EmbedderConfig
	model  EmbeddingModel
}

var _ types.Embedder = (*Embedder)(nil)

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	config = embedderDefaults(config)

	var (
		model EmbeddingModel
		err   error
	)
	switch config.Provider {
	case ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
		)
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithEmbeddingModel(config.Model),
			openai.WithToken(config.APIKey),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	return &Embedder{config: config, model: model}, nil
}

// NewEmbedderWithModel builds an embedder over an already constructed model.
func NewEmbedderWithModel(config EmbedderConfig, model EmbeddingModel) *Embedder {
	return &Embedder{config: embedderDefaults(config), model: model}
}

func embedderDefaults(config EmbedderConfig) EmbedderConfig {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.Model == "" {
		if config.Provider == ProviderOpenAI {
			config.Model = "text-embedding-3-small"
		} else {
			config.Model = "nomic-embed-text:latest" // Default Ollama model
		}
	}
	if config.BaseURL == "" && config.Provider == ProviderOllama {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return config
}

// Embed returns the vector of a single text. Newlines are replaced by spaces
// before the call. Every failure is reported as a *types.EmbeddingError.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if text == "" {
		return nil, &types.EmbeddingError{Err: types.ErrEmptyInput}
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	embeddings, err := e.model.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, &types.EmbeddingError{Err: err}
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, &types.EmbeddingError{Err: fmt.Errorf("model returned no embedding")}
	}

	vector := embeddings[0]
	if e.config.Dimension > 0 && len(vector) != e.config.Dimension {
		return nil, &types.EmbeddingError{
			Err: fmt.Errorf("embedding has dimension %d, want %d", len(vector), e.config.Dimension),
		}
	}

	return vector, nil
}
