package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/internal/types"
	"github.com/xhad/commons/pkg/llm"
)

func TestNewWithConfig(t *testing.T) {
	config := llm.ChatConfig{
		Model:       "testmodel",
		Temperature: 0.5,
		MaxTokens:   1000,
		BaseURL:     "http://localhost:1234",
	}
	engine, err := llm.NewWithConfig(config)
	assert.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestNewWithConfigRejectsInvalidSettings(t *testing.T) {
	_, err := llm.NewWithConfig(llm.ChatConfig{Temperature: 3})
	assert.Error(t, err)

	_, err = llm.NewWithConfig(llm.ChatConfig{MaxTokens: -1})
	assert.Error(t, err)

	_, err = llm.NewWithConfig(llm.ChatConfig{Provider: "unknown"})
	assert.Error(t, err)
}

func TestComplete(t *testing.T) {
	model := &fakeModel{reply: "Sure, here is the answer."}
	engine, err := llm.NewWithModel(llm.ChatConfig{Temperature: 0.7, MaxTokens: 500}, model)
	require.NoError(t, err)

	history := []models.Turn{
		{Role: models.RoleUser, Text: "Hi"},
		{Role: models.RoleAssistant, Text: "Hello!"},
		{Role: models.RoleUser, Text: "What is in the library?"},
	}

	reply, err := engine.Complete(context.Background(), "You are helpful.", history)
	require.NoError(t, err)
	assert.Equal(t, "Sure, here is the answer.", reply)

	require.Len(t, model.messages, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.messages[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[3].Role)
	assert.Equal(t, llms.TextContent{Text: "What is in the library?"}, model.messages[3].Parts[0])

	assert.Equal(t, 0.7, model.options.Temperature)
	assert.Equal(t, 500, model.options.MaxTokens)
}

func TestCompleteWithoutSystemPrompt(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	engine, err := llm.NewWithModel(llm.ChatConfig{}, model)
	require.NoError(t, err)

	_, err = engine.Complete(context.Background(), "", []models.Turn{{Role: models.RoleUser, Text: "ping"}})
	require.NoError(t, err)

	require.Len(t, model.messages, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[0].Role)
}

func TestCompleteWrapsFailures(t *testing.T) {
	cause := errors.New("rate limited")
	engine, err := llm.NewWithModel(llm.ChatConfig{}, &fakeModel{err: cause})
	require.NoError(t, err)

	_, err = engine.Complete(context.Background(), "sys", []models.Turn{{Role: models.RoleUser, Text: "hi"}})

	var completionErr *types.CompletionError
	require.ErrorAs(t, err, &completionErr)
	assert.ErrorIs(t, err, cause)
}

func TestCompleteStream(t *testing.T) {
	model := &fakeModel{reply: "Hello world", pieces: []string{"Hello", " ", "world"}}
	engine, err := llm.NewWithModel(llm.ChatConfig{}, model)
	require.NoError(t, err)

	textCh, errCh := engine.CompleteStream(context.Background(), "sys", []models.Turn{{Role: models.RoleUser, Text: "hi"}})

	var sb strings.Builder
	for piece := range textCh {
		sb.WriteString(piece)
	}
	assert.NoError(t, <-errCh)
	assert.Equal(t, "Hello world", sb.String())
}

func TestCompleteStreamFallsBackToFullReply(t *testing.T) {
	model := &fakeModel{reply: "not streamed"}
	engine, err := llm.NewWithModel(llm.ChatConfig{}, model)
	require.NoError(t, err)

	textCh, errCh := engine.CompleteStream(context.Background(), "sys", []models.Turn{{Role: models.RoleUser, Text: "hi"}})

	var pieces []string
	for piece := range textCh {
		pieces = append(pieces, piece)
	}
	assert.NoError(t, <-errCh)
	assert.Equal(t, []string{"not streamed"}, pieces)
}

func TestCompleteStreamReportsError(t *testing.T) {
	engine, err := llm.NewWithModel(llm.ChatConfig{}, &fakeModel{err: errors.New("boom")})
	require.NoError(t, err)

	textCh, errCh := engine.CompleteStream(context.Background(), "sys", nil)

	for range textCh {
	}
	err = <-errCh
	var completionErr *types.CompletionError
	assert.ErrorAs(t, err, &completionErr)
}
