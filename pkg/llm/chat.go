package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/internal/types"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // Ollama server URL, or an OpenAI-compatible endpoint
	APIKey      string
	Timeout     time.Duration
}

// ChatEngine is an engine that uses an LLM to generate chat responses.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

var _ types.StreamCompleter = (*ChatEngine)(nil)

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config, err := chatDefaults(config)
	if err != nil {
		return nil, err
	}

	var llm llms.Model
	switch config.Provider {
	case ProviderOllama:
		llm, err = ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
		)
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithModel(config.Model),
			openai.WithToken(config.APIKey),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown chat provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// NewWithModel creates a ChatEngine over an already constructed model.
func NewWithModel(config ChatConfig, llm llms.Model) (*ChatEngine, error) {
	config, err := chatDefaults(config)
	if err != nil {
		return nil, err
	}
	return &ChatEngine{config: config, llm: llm}, nil
}

func chatDefaults(config ChatConfig) (ChatConfig, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.Model == "" {
		if config.Provider == ProviderOpenAI {
			config.Model = "gpt-4o"
		} else {
			config.Model = "mistral" // Default Ollama model
		}
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return config, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.BaseURL == "" && config.Provider == ProviderOllama {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return config, nil
}

// Complete sends the system prompt followed by the conversation history and
// returns the model's reply.
func (ce *ChatEngine) Complete(ctx context.Context, systemPrompt string, history []models.Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
	defer cancel()

	response, err := ce.llm.GenerateContent(ctx, buildMessages(systemPrompt, history), ce.callOptions()...)
	if err != nil {
		return "", &types.CompletionError{Err: err}
	}

	return firstChoice(response)
}

// CompleteStream is Complete with the reply delivered in pieces as the model
// produces them. The text channel is closed when the reply ends; at most one
// error is sent on the error channel, which is closed afterwards.
func (ce *ChatEngine) CompleteStream(ctx context.Context, systemPrompt string, history []models.Turn) (<-chan string, <-chan error) {
	resultChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(errChan)
		defer close(resultChan)

		ctx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
		defer cancel()

		streamed := false
		stream := llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			streamed = true
			select {
			case resultChan <- string(chunk):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

		response, err := ce.llm.GenerateContent(ctx, buildMessages(systemPrompt, history), append(ce.callOptions(), stream)...)
		if err != nil {
			errChan <- &types.CompletionError{Err: err}
			return
		}
		if streamed {
			return
		}

		// Some backends ignore the streaming callback and only return the full reply.
		content, err := firstChoice(response)
		if err != nil {
			errChan <- err
			return
		}
		select {
		case resultChan <- content:
		case <-ctx.Done():
			errChan <- &types.CompletionError{Err: ctx.Err()}
		}
	}()

	return resultChan, errChan
}

func (ce *ChatEngine) callOptions() []llms.CallOption {
	return []llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}
}

func buildMessages(systemPrompt string, history []models.Turn) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(history)+1)
	if systemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}

	for _, turn := range history {
		content = append(content, llms.TextParts(messageType(turn.Role), turn.Text))
	}
	return content
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func firstChoice(response *llms.ContentResponse) (string, error) {
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", &types.CompletionError{Err: fmt.Errorf("no response from LLM")}
	}
	return response.Choices[0].Content, nil
}
