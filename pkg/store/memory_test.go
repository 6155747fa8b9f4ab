package store_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/internal/types"
	"github.com/xhad/commons/pkg/store"
)

// unit returns a 2-d unit vector whose cosine with (1, 0) is cos.
func unit(cos float64) []float32 {
	return []float32{float32(cos), float32(math.Sqrt(1 - cos*cos))}
}

var query = []float32{1, 0}

func newDocument(t *testing.T, s *store.MemoryStore, owner string) models.Document {
	t.Helper()
	doc, err := s.InsertDocument(context.Background(), models.Document{OwnerID: owner, Title: "doc", Content: "content"})
	require.NoError(t, err)
	return doc
}

func TestCosineSimilarity(t *testing.T) {
	score, err := store.CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	score, err = store.CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-9)

	score, err = store.CosineSimilarity([]float32{0, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	_, err = store.CosineSimilarity([]float32{1}, []float32{1, 0})
	assert.ErrorIs(t, err, types.ErrInvalidRecord)
}

func TestMemoryStore_SimilaritySearchThreshold(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(2)
	doc := newDocument(t, s, "user1")

	for i, cos := range []float64{0.9, 0.5, 0.3} {
		_, err := s.Documents().UpsertEmbedding(ctx, doc.ID, "chunk", unit(cos), map[string]interface{}{"chunk_index": i})
		require.NoError(t, err)
	}

	hits, err := s.Documents().SimilaritySearch(ctx, models.CorpusQuery{Embedding: query, Threshold: 0.4, Limit: 8})
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.InDelta(t, 0.9, hits[0].Score, 1e-4)
	assert.InDelta(t, 0.5, hits[1].Score, 1e-4)
	assert.Equal(t, doc.ID, hits[0].OwnerID)
	assert.Equal(t, 0, hits[0].Metadata["chunk_index"])
}

func TestMemoryStore_SimilaritySearchLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(2)
	doc := newDocument(t, s, "user1")

	for i, cos := range []float64{0.5, 0.95, 0.7, 0.8, 0.6} {
		_, err := s.Documents().UpsertEmbedding(ctx, doc.ID, "chunk", unit(cos), map[string]interface{}{"chunk_index": i})
		require.NoError(t, err)
	}

	hits, err := s.Documents().SimilaritySearch(ctx, models.CorpusQuery{Embedding: query, Threshold: 0, Limit: 3})
	require.NoError(t, err)

	require.Len(t, hits, 3)
	assert.InDelta(t, 0.95, hits[0].Score, 1e-4)
	assert.InDelta(t, 0.8, hits[1].Score, 1e-4)
	assert.InDelta(t, 0.7, hits[2].Score, 1e-4)

	hits, err = s.Documents().SimilaritySearch(ctx, models.CorpusQuery{Embedding: query, Threshold: 0, Limit: 0})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryStore_TiesPreferNewest(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(2)

	first, err := s.InsertMessage(ctx, models.Message{AuthorID: "a", Text: "older", Embedding: []float32{1, 0}})
	require.NoError(t, err)
	second, err := s.InsertMessage(ctx, models.Message{
		AuthorID:  "b",
		Text:      "newer",
		Embedding: []float32{2, 0},
		CreatedAt: first.CreatedAt.Add(time.Second),
	})
	require.NoError(t, err)

	hits, err := s.Messages().SimilaritySearch(ctx, models.CorpusQuery{Embedding: query, Threshold: 0.4, Limit: 8})
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.Equal(t, second.ID, hits[0].ID)
	assert.Equal(t, first.ID, hits[1].ID)
}

func TestMemoryStore_UnembeddedMessagesAreNotSearchable(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(2)

	pending, err := s.InsertMessage(ctx, models.Message{AuthorID: "a", Text: "no vector yet"})
	require.NoError(t, err)
	_, err = s.Messages().UpsertEmbedding(ctx, "b", "with vector", []float32{1, 0}, nil)
	require.NoError(t, err)

	hits, err := s.Messages().SimilaritySearch(ctx, models.CorpusQuery{Embedding: query, Threshold: 0, Limit: 8})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "with vector", hits[0].Text)

	unembedded, err := s.ListUnembeddedMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unembedded, 1)
	assert.Equal(t, pending.ID, unembedded[0].ID)

	require.NoError(t, s.SetMessageEmbedding(ctx, pending.ID, []float32{0.9, 0.1}))

	hits, err = s.Messages().SimilaritySearch(ctx, models.CorpusQuery{Embedding: query, Threshold: 0, Limit: 8})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	err = s.SetMessageEmbedding(ctx, "missing", []float32{1, 0})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestMemoryStore_DeleteDocumentCascades(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(2)
	doc := newDocument(t, s, "owner")
	other := newDocument(t, s, "owner")

	for i := 0; i < 3; i++ {
		_, err := s.Documents().UpsertEmbedding(ctx, doc.ID, "chunk", []float32{1, 0}, map[string]interface{}{"chunk_index": i})
		require.NoError(t, err)
	}
	_, err := s.Documents().UpsertEmbedding(ctx, other.ID, "other chunk", []float32{1, 0}, map[string]interface{}{"chunk_index": 0})
	require.NoError(t, err)

	err = s.DeleteDocument(ctx, doc.ID, "someone-else")
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, s.DeleteDocument(ctx, doc.ID, "owner"))

	n, err := s.CountChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	hits, err := s.Documents().SimilaritySearch(ctx, models.CorpusQuery{Embedding: query, Threshold: 0, Limit: 8})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, other.ID, hits[0].OwnerID)

	_, err = s.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestMemoryStore_ChunkRequiresDocument(t *testing.T) {
	s := store.NewMemoryStore(2)

	_, err := s.Documents().UpsertEmbedding(context.Background(), "missing", "chunk", []float32{1, 0}, nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestMemoryStore_RejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(2)
	doc := newDocument(t, s, "owner")

	_, err := s.Documents().UpsertEmbedding(ctx, doc.ID, "chunk", []float32{1, 0, 0}, nil)
	assert.ErrorIs(t, err, types.ErrInvalidRecord)

	_, err = s.Documents().UpsertEmbedding(ctx, doc.ID, "chunk", nil, nil)
	assert.ErrorIs(t, err, types.ErrInvalidRecord)

	_, err = s.Documents().UpsertEmbedding(ctx, doc.ID, "   ", []float32{1, 0}, nil)
	assert.ErrorIs(t, err, types.ErrInvalidRecord)

	_, err = s.InsertDocument(ctx, models.Document{Title: "orphan"})
	assert.ErrorIs(t, err, types.ErrInvalidRecord)

	_, err = s.Documents().SimilaritySearch(ctx, models.CorpusQuery{Embedding: []float32{1}, Limit: 8})
	assert.Error(t, err)
}

func TestMemoryStore_AnonymizeMessages(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(2)

	_, err := s.Messages().UpsertEmbedding(ctx, "leaver", "my secret plan", []float32{1, 0}, nil)
	require.NoError(t, err)
	_, err = s.Messages().UpsertEmbedding(ctx, "stayer", "hello", []float32{1, 0}, nil)
	require.NoError(t, err)

	require.NoError(t, s.AnonymizeMessages(ctx, "leaver", "[Deleted User Content]"))

	msgs, err := s.ListMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "[Deleted User Content]", msgs[0].Text)
	assert.Nil(t, msgs[0].Embedding)

	hits, err := s.Messages().SimilaritySearch(ctx, models.CorpusQuery{Embedding: query, Threshold: 0, Limit: 8})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "hello", hits[0].Text)
}

func TestMemoryStore_ListMessagesKeepsLatest(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(0)

	first, err := s.InsertMessage(ctx, models.Message{AuthorID: "a", Text: "one"})
	require.NoError(t, err)
	for i, text := range []string{"two", "three"} {
		_, err := s.InsertMessage(ctx, models.Message{AuthorID: "a", Text: text, CreatedAt: first.CreatedAt.Add(time.Duration(i+1) * time.Second)})
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
	assert.Equal(t, "three", msgs[1].Text)
}

func TestMemoryStore_Profiles(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(0)

	name, err := s.Nickname(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, s.SetNickname(ctx, "u1", "Ada"))

	name, err = s.Nickname(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)
}

func TestMemoryStore_SearchMixed(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(2)
	doc := newDocument(t, s, "owner")

	_, err := s.Documents().UpsertEmbedding(ctx, doc.ID, "doc chunk", unit(0.9), map[string]interface{}{"chunk_index": 0})
	require.NoError(t, err)
	_, err = s.Messages().UpsertEmbedding(ctx, "author", "chat line", unit(0.6), nil)
	require.NoError(t, err)
	_, err = s.Messages().UpsertEmbedding(ctx, "author", "off topic", unit(0.1), nil)
	require.NoError(t, err)

	q := models.CorpusQuery{Embedding: query, Threshold: 0.4, Limit: 8}
	docHits, msgHits, err := s.SearchMixed(ctx, q, q)
	require.NoError(t, err)

	require.Len(t, docHits, 1)
	assert.Equal(t, "doc chunk", docHits[0].Text)
	require.Len(t, msgHits, 1)
	assert.Equal(t, "chat line", msgHits[0].Text)
}
