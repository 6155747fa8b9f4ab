// Package assistant answers a conversation turn: it retrieves supporting
// passages for the latest question and asks the chat model with them in the
// system prompt.
package assistant

import (
	"context"
	"strings"

	"github.com/xhad/commons/internal/logger"
	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/internal/types"
)

// Retriever finds the passages relevant to a query. It never fails; an empty
// result means no context.
type Retriever interface {
	Retrieve(ctx context.Context, query string) []models.RetrievalCandidate
}

// PromptBuilder renders candidates into a system prompt.
type PromptBuilder interface {
	Assemble(candidates []models.RetrievalCandidate) string
	SystemPrompt(contextBlock string) string
}

// Answer is a completed turn with the passages it was grounded on.
type Answer struct {
	Text    string
	Sources []models.RetrievalCandidate
}

type Assistant struct {
	retriever Retriever
	prompts   PromptBuilder
	completer types.StreamCompleter
}

func New(retriever Retriever, prompts PromptBuilder, completer types.StreamCompleter) *Assistant {
	return &Assistant{
		retriever: retriever,
		prompts:   prompts,
		completer: completer,
	}
}

// Answer replies to the last user turn of history. Retrieval problems only
// reduce the context; a completion failure fails the turn.
func (a *Assistant) Answer(ctx context.Context, history []models.Turn) (Answer, error) {
	systemPrompt, sources, err := a.prepare(ctx, history)
	if err != nil {
		return Answer{}, err
	}

	text, err := a.completer.Complete(ctx, systemPrompt, history)
	if err != nil {
		return Answer{}, err
	}

	return Answer{Text: text, Sources: sources}, nil
}

// AnswerStream is Answer with the reply streamed. The sources are known
// before the first piece of text arrives.
func (a *Assistant) AnswerStream(ctx context.Context, history []models.Turn) ([]models.RetrievalCandidate, <-chan string, <-chan error, error) {
	systemPrompt, sources, err := a.prepare(ctx, history)
	if err != nil {
		return nil, nil, nil, err
	}

	textCh, errCh := a.completer.CompleteStream(ctx, systemPrompt, history)
	return sources, textCh, errCh, nil
}

func (a *Assistant) prepare(ctx context.Context, history []models.Turn) (string, []models.RetrievalCandidate, error) {
	query := lastUserTurn(history)
	if query == "" {
		return "", nil, types.ErrEmptyInput
	}

	sources := a.retriever.Retrieve(ctx, query)
	logger.Debug("Answering with %d context passages", len(sources))

	return a.prompts.SystemPrompt(a.prompts.Assemble(sources)), sources, nil
}

func lastUserTurn(history []models.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return strings.TrimSpace(history[i].Text)
		}
	}
	return ""
}
