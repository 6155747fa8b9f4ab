package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/commons/internal/types"
	"github.com/xhad/commons/pkg/llm"
)

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   "nomic-embed-text:latest",
		BaseURL: "http://localhost:11434",
	})
	require.NoError(t, err)
	assert.NotNil(t, emb)

	_, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "unknown"})
	assert.Error(t, err)
}

func TestEmbed(t *testing.T) {
	model := &fakeEmbeddingModel{vectors: [][]float32{{0.1, 0.2, 0.3}}}
	emb := llm.NewEmbedderWithModel(llm.EmbedderConfig{Dimension: 3}, model)

	vector, err := emb.Embed(context.Background(), "first line\nsecond line")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
	assert.Equal(t, []string{"first line second line"}, model.texts)
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	model := &fakeEmbeddingModel{vectors: [][]float32{{1}}}
	emb := llm.NewEmbedderWithModel(llm.EmbedderConfig{}, model)

	_, err := emb.Embed(context.Background(), " \n ")

	var embErr *types.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.ErrorIs(t, err, types.ErrEmptyInput)
	assert.Nil(t, model.texts)
}

func TestEmbedFailures(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeEmbeddingModel
		dim   int
	}{
		{name: "model error", model: &fakeEmbeddingModel{err: errors.New("connection refused")}},
		{name: "no vectors", model: &fakeEmbeddingModel{}},
		{name: "wrong dimension", model: &fakeEmbeddingModel{vectors: [][]float32{{1, 2}}}, dim: 1536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := llm.NewEmbedderWithModel(llm.EmbedderConfig{Dimension: tt.dim}, tt.model)

			_, err := emb.Embed(context.Background(), "hello")

			var embErr *types.EmbeddingError
			assert.ErrorAs(t, err, &embErr)
		})
	}
}
