package types_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/commons/internal/types"
)

func TestErrorsUnwrap(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"embedding", &types.EmbeddingError{Err: context.DeadlineExceeded}},
		{"search", &types.SearchError{Corpus: "messages", Err: context.DeadlineExceeded}},
		{"completion", &types.CompletionError{Err: context.DeadlineExceeded}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("failed to run turn: %w", tt.err)
			assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
		})
	}
}

func TestErrorsAs(t *testing.T) {
	err := fmt.Errorf("failed to answer: %w", &types.CompletionError{Err: errors.New("boom")})

	var completionErr *types.CompletionError
	assert.True(t, errors.As(err, &completionErr))
	assert.Equal(t, "completion failed: boom", completionErr.Error())

	var searchErr *types.SearchError
	assert.False(t, errors.As(err, &searchErr))
}

func TestSearchErrorNamesCorpus(t *testing.T) {
	err := &types.SearchError{Corpus: "documents", Err: errors.New("connection refused")}
	assert.Equal(t, "search in documents failed: connection refused", err.Error())
}
