package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/internal/types"
)

var (
	_ types.Store         = (*VectorStore)(nil)
	_ types.MixedSearcher = (*VectorStore)(nil)
)

type VectorStoreConfig struct {
	ConnString string
	VectorDim  int
	// IndexLists is the ivfflat list count of the vector indexes.
	IndexLists int
}

// VectorStore persists documents, chunks, messages and profiles in
// PostgreSQL and answers cosine similarity queries through pgvector.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}
	if config.IndexLists == 0 {
		config.IndexLists = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			nickname TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT,
			content TEXT,
			storage_path TEXT,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vs.config.VectorDim),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS community_messages (
			id TEXT PRIMARY KEY,
			author_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vs.config.VectorDim),
		`CREATE INDEX IF NOT EXISTS document_chunks_document_id_idx ON document_chunks (document_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS document_chunks_embedding_idx
			ON document_chunks
			USING ivfflat (embedding vector_cosine_ops)
			WITH (lists = %d)`, vs.config.IndexLists),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS community_messages_embedding_idx
			ON community_messages
			USING ivfflat (embedding vector_cosine_ops)
			WITH (lists = %d)`, vs.config.IndexLists),
	}

	for _, stmt := range statements {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return nil
}

func (vs *VectorStore) Documents() types.Corpus { return &pgChunks{vs: vs} }

func (vs *VectorStore) Messages() types.Corpus { return &pgMessages{vs: vs} }

func (vs *VectorStore) InsertDocument(ctx context.Context, doc models.Document) (models.Document, error) {
	if doc.OwnerID == "" {
		return models.Document{}, fmt.Errorf("%w: document without owner", types.ErrInvalidRecord)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Title = sanitizeUTF8(doc.Title)
	doc.Content = sanitizeUTF8(doc.Content)

	err := vs.pool.QueryRow(ctx, `
		INSERT INTO documents (id, owner_id, title, content, storage_path, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		doc.ID, doc.OwnerID, doc.Title, doc.Content, doc.StoragePath, doc.Metadata,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to insert document: %w", err)
	}

	return doc, nil
}

func (vs *VectorStore) GetDocument(ctx context.Context, id string) (models.Document, error) {
	var doc models.Document
	err := vs.pool.QueryRow(ctx, `
		SELECT id, owner_id, COALESCE(title, ''), COALESCE(content, ''), COALESCE(storage_path, ''), metadata, created_at
		FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.Content, &doc.StoragePath, &doc.Metadata, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, fmt.Errorf("document %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns the owner's documents without their content, newest
// first. An empty ownerID lists all documents.
func (vs *VectorStore) ListDocuments(ctx context.Context, ownerID string) ([]models.Document, error) {
	rows, err := vs.pool.Query(ctx, `
		SELECT id, owner_id, COALESCE(title, ''), COALESCE(storage_path, ''), created_at
		FROM documents
		WHERE $1 = '' OR owner_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.StoragePath, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes the document; its chunks go with it through the
// foreign key cascade.
func (vs *VectorStore) DeleteDocument(ctx context.Context, id, ownerID string) error {
	tag, err := vs.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func (vs *VectorStore) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	err := vs.pool.QueryRow(ctx, `SELECT count(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (vs *VectorStore) InsertMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := validateText(msg.Text); err != nil {
		return models.Message{}, err
	}

	var embedding interface{}
	if msg.Embedding != nil {
		if err := validateVector(msg.Embedding, vs.config.VectorDim); err != nil {
			return models.Message{}, err
		}
		embedding = pgvector.NewVector(msg.Embedding)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Text = sanitizeUTF8(msg.Text)

	err := vs.pool.QueryRow(ctx, `
		INSERT INTO community_messages (id, author_id, content, embedding)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		msg.ID, msg.AuthorID, msg.Text, embedding,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	return msg, nil
}

// ListMessages returns the most recent messages in chronological order.
// Embeddings are not loaded.
func (vs *VectorStore) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	return vs.queryMessages(ctx, `
		SELECT id, author_id, content, created_at FROM (
			SELECT id, author_id, content, created_at
			FROM community_messages
			ORDER BY created_at DESC
			LIMIT $1
		) recent
		ORDER BY created_at ASC`, limit)
}

// ListUnembeddedMessages returns messages stored without a vector, oldest first.
func (vs *VectorStore) ListUnembeddedMessages(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	return vs.queryMessages(ctx, `
		SELECT id, author_id, content, created_at
		FROM community_messages
		WHERE embedding IS NULL
		ORDER BY created_at ASC
		LIMIT $1`, limit)
}

func (vs *VectorStore) queryMessages(ctx context.Context, query string, args ...interface{}) ([]models.Message, error) {
	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.AuthorID, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (vs *VectorStore) SetMessageEmbedding(ctx context.Context, id string, vector []float32) error {
	if err := validateVector(vector, vs.config.VectorDim); err != nil {
		return err
	}

	tag, err := vs.pool.Exec(ctx, `UPDATE community_messages SET embedding = $2 WHERE id = $1`, id, pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("failed to update message embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func (vs *VectorStore) AnonymizeMessages(ctx context.Context, authorID, replacement string) error {
	_, err := vs.pool.Exec(ctx, `
		UPDATE community_messages SET content = $2, embedding = NULL
		WHERE author_id = $1`, authorID, replacement)
	if err != nil {
		return fmt.Errorf("failed to anonymize messages: %w", err)
	}
	return nil
}

func (vs *VectorStore) Nickname(ctx context.Context, userID string) (string, error) {
	var nickname string
	err := vs.pool.QueryRow(ctx, `SELECT COALESCE(nickname, '') FROM profiles WHERE id = $1`, userID).Scan(&nickname)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get nickname: %w", err)
	}
	return nickname, nil
}

func (vs *VectorStore) SetNickname(ctx context.Context, userID, nickname string) error {
	_, err := vs.pool.Exec(ctx, `
		INSERT INTO profiles (id, nickname) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET nickname = EXCLUDED.nickname`, userID, nickname)
	if err != nil {
		return fmt.Errorf("failed to set nickname: %w", err)
	}
	return nil
}

const chunkSearchQuery = `
	SELECT id, document_id, content, 1 - (embedding <=> $1) AS score, created_at
	FROM document_chunks
	WHERE 1 - (embedding <=> $1) >= $2
	ORDER BY score DESC, created_at DESC
	LIMIT $3`

const messageSearchQuery = `
	SELECT id, author_id, content, 1 - (embedding <=> $1) AS score, created_at
	FROM community_messages
	WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2
	ORDER BY score DESC, created_at DESC
	LIMIT $3`

// mixedSearchQuery unions both corpus searches in one round trip while keeping
// each side's threshold and cap.
const mixedSearchQuery = `
	(SELECT 'document' AS source, id, document_id, content, 1 - (embedding <=> $1) AS score, created_at
	 FROM document_chunks
	 WHERE 1 - (embedding <=> $1) >= $2
	 ORDER BY score DESC, created_at DESC
	 LIMIT $3)
	UNION ALL
	(SELECT 'message' AS source, id, author_id, content, 1 - (embedding <=> $4) AS score, created_at
	 FROM community_messages
	 WHERE embedding IS NOT NULL AND 1 - (embedding <=> $4) >= $5
	 ORDER BY score DESC, created_at DESC
	 LIMIT $6)`

func (vs *VectorStore) search(ctx context.Context, query string, q models.CorpusQuery) ([]models.SearchHit, error) {
	if q.Limit <= 0 {
		return []models.SearchHit{}, nil
	}
	if err := validateVector(q.Embedding, vs.config.VectorDim); err != nil {
		return nil, err
	}

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(q.Embedding), q.Threshold, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar records: %w", err)
	}
	defer rows.Close()

	hits := make([]models.SearchHit, 0, q.Limit)
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.Text, &h.Score, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read similar records: %w", err)
	}

	// SQL ordering is exact; re-rank to apply the recency tie-break tolerance.
	rankHits(hits)
	return hits, nil
}

func (vs *VectorStore) SearchMixed(ctx context.Context, docs, msgs models.CorpusQuery) ([]models.SearchHit, []models.SearchHit, error) {
	for _, q := range []models.CorpusQuery{docs, msgs} {
		if err := validateVector(q.Embedding, vs.config.VectorDim); err != nil {
			return nil, nil, err
		}
	}

	rows, err := vs.pool.Query(ctx, mixedSearchQuery,
		pgvector.NewVector(docs.Embedding), docs.Threshold, max(docs.Limit, 0),
		pgvector.NewVector(msgs.Embedding), msgs.Threshold, max(msgs.Limit, 0),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query mixed context: %w", err)
	}
	defer rows.Close()

	docHits := []models.SearchHit{}
	msgHits := []models.SearchHit{}
	for rows.Next() {
		var source string
		var h models.SearchHit
		if err := rows.Scan(&source, &h.ID, &h.OwnerID, &h.Text, &h.Score, &h.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if source == string(models.SourceDocument) {
			docHits = append(docHits, h)
		} else {
			msgHits = append(msgHits, h)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read mixed context: %w", err)
	}

	rankHits(docHits)
	rankHits(msgHits)
	return docHits, msgHits, nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// pgChunks is the document-chunk corpus backed by the document_chunks table.
type pgChunks struct {
	vs *VectorStore
}

// UpsertEmbedding inserts a chunk of the document ownerID. The chunk position
// is read from metadata["chunk_index"].
func (c *pgChunks) UpsertEmbedding(ctx context.Context, ownerID, text string, vector []float32, metadata map[string]interface{}) (string, error) {
	if err := validateText(text); err != nil {
		return "", err
	}
	if err := validateVector(vector, c.vs.config.VectorDim); err != nil {
		return "", err
	}

	index, _ := metadata["chunk_index"].(int)
	id := uuid.NewString()

	_, err := c.vs.pool.Exec(ctx, `
		INSERT INTO document_chunks (id, document_id, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5)`,
		id, ownerID, index, sanitizeUTF8(text), pgvector.NewVector(vector),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert chunk: %w", err)
	}
	return id, nil
}

func (c *pgChunks) SimilaritySearch(ctx context.Context, q models.CorpusQuery) ([]models.SearchHit, error) {
	return c.vs.search(ctx, chunkSearchQuery, q)
}

// pgMessages is the chat-message corpus backed by the community_messages table.
type pgMessages struct {
	vs *VectorStore
}

func (m *pgMessages) UpsertEmbedding(ctx context.Context, ownerID, text string, vector []float32, metadata map[string]interface{}) (string, error) {
	if err := validateVector(vector, m.vs.config.VectorDim); err != nil {
		return "", err
	}

	msg, err := m.vs.InsertMessage(ctx, models.Message{AuthorID: ownerID, Text: text, Embedding: vector})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (m *pgMessages) SimilaritySearch(ctx context.Context, q models.CorpusQuery) ([]models.SearchHit, error) {
	return m.vs.search(ctx, messageSearchQuery, q)
}
