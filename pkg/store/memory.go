package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/internal/types"
)

var _ types.Store = (*MemoryStore)(nil)

// MemoryStore keeps every record in process and answers similarity queries
// with a brute-force cosine scan. It backs the database-less mode and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	vectorDim int
	now       func() time.Time

	documents map[string]models.Document
	chunks    []models.DocumentChunk
	messages  []models.Message
	profiles  map[string]models.Profile
}

// NewMemoryStore creates an empty store. A vectorDim of 0 accepts any dimension.
func NewMemoryStore(vectorDim int) *MemoryStore {
	return &MemoryStore{
		vectorDim: vectorDim,
		now:       func() time.Time { return time.Now().UTC() },
		documents: make(map[string]models.Document),
		profiles:  make(map[string]models.Profile),
	}
}

func (s *MemoryStore) Documents() types.Corpus { return &memoryChunks{store: s} }

func (s *MemoryStore) Messages() types.Corpus { return &memoryMessages{store: s} }

func (s *MemoryStore) Close() {}

func (s *MemoryStore) InsertDocument(ctx context.Context, doc models.Document) (models.Document, error) {
	if err := ctx.Err(); err != nil {
		return models.Document{}, err
	}
	if doc.OwnerID == "" {
		return models.Document{}, fmt.Errorf("%w: document without owner", types.ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, exists := s.documents[doc.ID]; exists {
		return models.Document{}, fmt.Errorf("%w: document %s already exists", types.ErrInvalidRecord, doc.ID)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	doc.Title = sanitizeUTF8(doc.Title)
	doc.Content = sanitizeUTF8(doc.Content)

	s.documents[doc.ID] = doc
	return doc, nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id string) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return models.Document{}, fmt.Errorf("document %s: %w", id, types.ErrNotFound)
	}
	return doc, nil
}

// ListDocuments returns the owner's documents, newest first. An empty ownerID lists all.
func (s *MemoryStore) ListDocuments(ctx context.Context, ownerID string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]models.Document, 0, len(s.documents))
	for _, d := range s.documents {
		if ownerID == "" || d.OwnerID == ownerID {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

// DeleteDocument removes the document and, with it, all of its chunks.
func (s *MemoryStore) DeleteDocument(ctx context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok || doc.OwnerID != ownerID {
		return fmt.Errorf("document %s: %w", id, types.ErrNotFound)
	}
	delete(s.documents, id)

	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.DocumentID != id {
			kept = append(kept, c)
		}
	}
	s.chunks = kept
	return nil
}

func (s *MemoryStore) CountChunks(ctx context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	if err := validateText(msg.Text); err != nil {
		return models.Message{}, err
	}
	if msg.Embedding != nil {
		if err := validateVector(msg.Embedding, s.vectorDim); err != nil {
			return models.Message{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.Text = sanitizeUTF8(msg.Text)

	s.messages = append(s.messages, msg)
	return msg, nil
}

// ListMessages returns the most recent messages in chronological order.
func (s *MemoryStore) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]models.Message, len(s.messages))
	copy(msgs, s.messages)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// ListUnembeddedMessages returns messages stored without a vector, oldest first.
func (s *MemoryStore) ListUnembeddedMessages(ctx context.Context, limit int) ([]models.Message, error) {
	all, err := s.ListMessages(ctx, 0)
	if err != nil {
		return nil, err
	}

	var pending []models.Message
	for _, m := range all {
		if m.Embedding == nil {
			pending = append(pending, m)
			if limit > 0 && len(pending) == limit {
				break
			}
		}
	}
	return pending, nil
}

func (s *MemoryStore) SetMessageEmbedding(ctx context.Context, id string, vector []float32) error {
	if err := validateVector(vector, s.vectorDim); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Embedding = vector
			return nil
		}
	}
	return fmt.Errorf("message %s: %w", id, types.ErrNotFound)
}

// AnonymizeMessages replaces the text of every message by authorID and drops
// their vectors so the original content can no longer be matched.
func (s *MemoryStore) AnonymizeMessages(ctx context.Context, authorID, replacement string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].AuthorID == authorID {
			s.messages[i].Text = replacement
			s.messages[i].Embedding = nil
		}
	}
	return nil
}

func (s *MemoryStore) Nickname(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[userID].Nickname, nil
}

func (s *MemoryStore) SetNickname(ctx context.Context, userID, nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = models.Profile{ID: userID, Nickname: nickname}
	return nil
}

// SearchMixed answers both corpus queries under a single read lock.
func (s *MemoryStore) SearchMixed(ctx context.Context, docs, msgs models.CorpusQuery) ([]models.SearchHit, []models.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docHits, err := s.scanChunks(docs)
	if err != nil {
		return nil, nil, err
	}
	msgHits, err := s.scanMessages(msgs)
	if err != nil {
		return nil, nil, err
	}
	return docHits, msgHits, nil
}

func (s *MemoryStore) scanChunks(q models.CorpusQuery) ([]models.SearchHit, error) {
	if err := validateVector(q.Embedding, s.vectorDim); err != nil {
		return nil, err
	}

	hits := make([]models.SearchHit, 0, len(s.chunks))
	for _, c := range s.chunks {
		score, err := CosineSimilarity(q.Embedding, c.Embedding)
		if err != nil {
			return nil, err
		}
		hits = append(hits, models.SearchHit{
			ID:        c.ID,
			OwnerID:   c.DocumentID,
			Text:      c.Text,
			Score:     score,
			CreatedAt: c.CreatedAt,
			Metadata:  map[string]interface{}{"chunk_index": c.Index},
		})
	}
	return selectHits(hits, q.Threshold, q.Limit), nil
}

func (s *MemoryStore) scanMessages(q models.CorpusQuery) ([]models.SearchHit, error) {
	if err := validateVector(q.Embedding, s.vectorDim); err != nil {
		return nil, err
	}

	hits := make([]models.SearchHit, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Embedding == nil {
			continue
		}
		score, err := CosineSimilarity(q.Embedding, m.Embedding)
		if err != nil {
			return nil, err
		}
		hits = append(hits, models.SearchHit{
			ID:        m.ID,
			OwnerID:   m.AuthorID,
			Text:      m.Text,
			Score:     score,
			CreatedAt: m.CreatedAt,
		})
	}
	return selectHits(hits, q.Threshold, q.Limit), nil
}

// memoryChunks is the document-chunk corpus view of a MemoryStore.
type memoryChunks struct {
	store *MemoryStore
}

// UpsertEmbedding stores a chunk of the document ownerID. The chunk position
// is read from metadata["chunk_index"].
func (c *memoryChunks) UpsertEmbedding(ctx context.Context, ownerID, text string, vector []float32, metadata map[string]interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateText(text); err != nil {
		return "", err
	}
	if err := validateVector(vector, c.store.vectorDim); err != nil {
		return "", err
	}

	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[ownerID]; !ok {
		return "", fmt.Errorf("document %s: %w", ownerID, types.ErrNotFound)
	}

	index, _ := metadata["chunk_index"].(int)
	chunk := models.DocumentChunk{
		ID:         uuid.NewString(),
		DocumentID: ownerID,
		Index:      index,
		Text:       sanitizeUTF8(text),
		Embedding:  vector,
		CreatedAt:  s.now(),
	}
	s.chunks = append(s.chunks, chunk)
	return chunk.ID, nil
}

func (c *memoryChunks) SimilaritySearch(ctx context.Context, q models.CorpusQuery) ([]models.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return c.store.scanChunks(q)
}

// memoryMessages is the chat-message corpus view of a MemoryStore.
type memoryMessages struct {
	store *MemoryStore
}

// UpsertEmbedding stores a message by author ownerID together with its vector.
func (m *memoryMessages) UpsertEmbedding(ctx context.Context, ownerID, text string, vector []float32, metadata map[string]interface{}) (string, error) {
	if err := validateVector(vector, m.store.vectorDim); err != nil {
		return "", err
	}

	msg, err := m.store.InsertMessage(ctx, models.Message{
		AuthorID:  ownerID,
		Text:      text,
		Embedding: vector,
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (m *memoryMessages) SimilaritySearch(ctx context.Context, q models.CorpusQuery) ([]models.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	return m.store.scanMessages(q)
}
