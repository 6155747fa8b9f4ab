package llm_test

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
)

// fakeModel is an llms.Model that records the last request and replies with
// a canned answer, streaming it in pieces when asked to.
type fakeModel struct {
	reply  string
	pieces []string
	err    error

	messages []llms.MessageContent
	options  llms.CallOptions
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	m.options = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.options)
	}

	if m.err != nil {
		return nil, m.err
	}

	if m.options.StreamingFunc != nil {
		for _, p := range m.pieces {
			if err := m.options.StreamingFunc(ctx, []byte(p)); err != nil {
				return nil, err
			}
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.reply}},
	}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

type fakeEmbeddingModel struct {
	vectors [][]float32
	err     error
	texts   []string
}

func (m *fakeEmbeddingModel) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	m.texts = texts
	if m.err != nil {
		return nil, m.err
	}
	return m.vectors, nil
}
