package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	add := func(field, message string) {
		errors = append(errors, ValidationError{Field: field, Message: message})
	}

	// Validate LLM config
	switch c.LLM.Provider {
	case "ollama":
		if c.LLM.BaseURL == "" {
			add("llm.base_url", "Ollama base URL is required")
		} else if !validURL(c.LLM.BaseURL) {
			add("llm.base_url", "invalid Ollama base URL")
		}
	case "openai":
		if c.LLM.APIKey == "" {
			add("llm.api_key", "OpenAI API key is required")
		}
	default:
		add("llm.provider", fmt.Sprintf("unknown provider: %s", c.LLM.Provider))
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 16384 {
		add("llm.max_tokens", "max_tokens must be between 1 and 16384")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature", "temperature must be between 0 and 2")
	}

	// Validate Embedding config
	if c.Embedding.Provider != "ollama" && c.Embedding.Provider != "openai" {
		add("embedding.provider", fmt.Sprintf("unknown provider: %s", c.Embedding.Provider))
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		add("embedding.api_key", "OpenAI API key is required")
	}
	if c.Embedding.Dimension != c.Database.VectorDim {
		add("embedding.dimension", "dimension must match database.vector_dim")
	}
	if c.Embedding.Concurrency < 1 {
		add("embedding.concurrency", "concurrency must be positive")
	}
	if c.Embedding.RateLimit < 0 {
		add("embedding.rate_limit", "rate_limit must not be negative")
	}

	// Validate Database config
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			add("database.url", "database URL is required for the postgres driver")
		} else if !validURL(c.Database.URL) {
			add("database.url", "invalid database URL")
		}
	case DriverMemory:
	default:
		add("database.driver", fmt.Sprintf("unknown driver: %s", c.Database.Driver))
	}

	if c.Database.VectorDim < 1 {
		add("database.vector_dim", "vector_dim must be positive")
	}

	// Validate Retrieval config
	corpora := []struct {
		name   string
		corpus CorpusConfig
	}{
		{"documents", c.Retrieval.Documents},
		{"messages", c.Retrieval.Messages},
	}
	for _, cc := range corpora {
		if cc.corpus.Threshold < -1 || cc.corpus.Threshold > 1 {
			add("retrieval."+cc.name+".threshold", "threshold must be between -1 and 1")
		}
		if cc.corpus.Limit < 1 {
			add("retrieval."+cc.name+".limit", "limit must be positive")
		}
	}
	if c.Retrieval.MaxContextItems < 1 {
		add("retrieval.max_context_items", "max_context_items must be positive")
	}

	// Validate Processor config
	if c.Processor.MaxTokensPerChunk < 1 {
		add("processor.max_tokens_per_chunk", "max_tokens_per_chunk must be positive")
	}
	if c.Processor.MaxChunks < 1 {
		add("processor.max_chunks", "max_chunks must be positive")
	}

	// Validate Scraper config
	if c.Scraper.MaxDepth < 1 {
		add("scraper.max_depth", "max_depth must be positive")
	}

	if c.Scraper.RateLimit <= 0 {
		add("scraper.rate_limit", "rate_limit must be positive")
	}

	// Validate extensions format
	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			add("scraper.allowed_extensions", fmt.Sprintf("invalid extension format: %s", ext))
		}
	}

	// Validate Notify config
	if c.Notify.QueueSize < 1 || c.Notify.Workers < 1 {
		add("notify", "queue_size and workers must be positive")
	}

	// Validate Server config
	if c.Server.Addr == "" {
		add("server.addr", "listen address is required")
	}

	return errors
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
