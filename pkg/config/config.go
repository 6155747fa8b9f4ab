package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Database  DatabaseConfig  `yaml:"database"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Processor ProcessorConfig `yaml:"processor"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Notify    NotifyConfig    `yaml:"notify"`
	Server    ServerConfig    `yaml:"server"`
}

type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
	// Concurrency and RateLimit bound embedding calls during ingestion.
	Concurrency int     `yaml:"concurrency"`
	RateLimit   float64 `yaml:"rate_limit"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	URL        string `yaml:"url"`
	VectorDim  int    `yaml:"vector_dim"`
	IndexLists int    `yaml:"index_lists"`
}

type CorpusConfig struct {
	Threshold float64 `yaml:"threshold"`
	Limit     int     `yaml:"limit"`
}

type RetrievalConfig struct {
	Documents       CorpusConfig  `yaml:"documents"`
	Messages        CorpusConfig  `yaml:"messages"`
	MaxContextItems int           `yaml:"max_context_items"`
	SearchTimeout   time.Duration `yaml:"search_timeout"`
	Unified         bool          `yaml:"unified"`
	FallbackAuthor  string        `yaml:"fallback_author"`
}

type PromptConfig struct {
	AssistantName string `yaml:"assistant_name"`
	CommunityName string `yaml:"community_name"`
	MaxChars      int    `yaml:"max_chars"`
}

type ProcessorConfig struct {
	MaxTokensPerChunk int `yaml:"max_tokens_per_chunk"`
	MaxChunks         int `yaml:"max_chunks"`
}

type ScraperConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	MaxPages          int      `yaml:"max_pages"`
	RateLimit         float64  `yaml:"rate_limit"`
	IgnorePatterns    []string `yaml:"ignore_patterns"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type NotifyConfig struct {
	QueueSize  int    `yaml:"queue_size"`
	Workers    int    `yaml:"workers"`
	MaxRetries uint64 `yaml:"max_retries"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr"`
	Streaming    bool   `yaml:"streaming"`
	HistoryLimit int    `yaml:"history_limit"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/commons/config.yaml"),
			"/etc/commons/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == "openai" {
			config.LLM.Model = "gpt-4o"
		} else {
			config.LLM.Model = "mistral"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 60 * time.Second
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = config.LLM.Provider
	}
	if config.Embedding.Model == "" {
		if config.Embedding.Provider == "openai" {
			config.Embedding.Model = "text-embedding-3-small"
		} else {
			config.Embedding.Model = "nomic-embed-text:latest"
		}
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == config.LLM.Provider {
		config.Embedding.BaseURL = config.LLM.BaseURL
	}
	if config.Embedding.APIKey == "" {
		config.Embedding.APIKey = config.LLM.APIKey
	}
	if config.Embedding.Timeout == 0 {
		config.Embedding.Timeout = 10 * time.Second
	}
	if config.Embedding.Concurrency == 0 {
		config.Embedding.Concurrency = 4
	}

	if config.Database.Driver == "" {
		if config.Database.URL != "" {
			config.Database.Driver = DriverPostgres
		} else {
			config.Database.Driver = DriverMemory
		}
	}
	if config.Embedding.Dimension == 0 {
		config.Embedding.Dimension = config.Database.VectorDim
	}
	if config.Embedding.Dimension == 0 {
		config.Embedding.Dimension = modelDimension(config.Embedding.Model)
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = config.Embedding.Dimension
	}
	if config.Database.IndexLists == 0 {
		config.Database.IndexLists = 100
	}

	for _, c := range []*CorpusConfig{&config.Retrieval.Documents, &config.Retrieval.Messages} {
		if c.Threshold == 0 {
			c.Threshold = 0.4
		}
		if c.Limit == 0 {
			c.Limit = 8
		}
	}
	if config.Retrieval.MaxContextItems == 0 {
		config.Retrieval.MaxContextItems = 8
	}
	if config.Retrieval.SearchTimeout == 0 {
		config.Retrieval.SearchTimeout = 5 * time.Second
	}
	if config.Retrieval.FallbackAuthor == "" {
		config.Retrieval.FallbackAuthor = "User"
	}

	if config.Prompt.MaxChars == 0 {
		config.Prompt.MaxChars = 12000
	}

	if config.Processor.MaxTokensPerChunk == 0 {
		config.Processor.MaxTokensPerChunk = 500
	}
	if config.Processor.MaxChunks == 0 {
		config.Processor.MaxChunks = 10
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.MaxPages == 0 {
		config.Scraper.MaxPages = 50
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Notify.QueueSize == 0 {
		config.Notify.QueueSize = 100
	}
	if config.Notify.Workers == 0 {
		config.Notify.Workers = 2
	}
	if config.Notify.MaxRetries == 0 {
		config.Notify.MaxRetries = 3
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.HistoryLimit == 0 {
		config.Server.HistoryLimit = 50
	}
}

// Output sizes of common embedding models, keyed without the Ollama tag.
var embeddingDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// modelDimension returns the vector size of a known embedding model, or 1536.
func modelDimension(model string) int {
	name, _, _ := strings.Cut(model, ":")
	if dim, ok := embeddingDimensions[name]; ok {
		return dim
	}
	return 1536
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if addr := os.Getenv("COMMONS_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
}
