package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/xhad/commons/internal/logger"
	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/internal/types"
	"github.com/xhad/commons/pkg/assistant"
	"github.com/xhad/commons/pkg/ingest"
	"github.com/xhad/commons/pkg/notify"
)

const (
	TypeChat      = "chat"
	TypePost      = "post"
	TypeIngestURL = "ingest_url"

	TypeResponse     = "response"
	TypeStream       = "stream"
	TypeStreamEnd    = "stream_end"
	TypeSources      = "sources"
	TypeStatus       = "status"
	TypePosted       = "posted"
	TypeNotification = "notification"
	TypeError        = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type Message struct {
	Type    string        `json:"type"`
	Content string        `json:"content"`
	History []models.Turn `json:"history,omitempty"`
	Data    interface{}   `json:"data,omitempty"`
}

// Source is the wire form of a retrieved passage.
type Source struct {
	Type   string  `json:"type"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Author string  `json:"author,omitempty"`
}

type Answerer interface {
	Answer(ctx context.Context, history []models.Turn) (assistant.Answer, error)
	AnswerStream(ctx context.Context, history []models.Turn) ([]models.RetrievalCandidate, <-chan string, <-chan error, error)
}

type Poster interface {
	PostMessage(ctx context.Context, authorID, text string) (models.Message, error)
}

type URLIngester interface {
	IngestURL(ctx context.Context, ownerID, rootURL string) ([]ingest.Result, error)
}

type Config struct {
	Streaming bool
	// HistoryLimit caps the turns kept per connection.
	HistoryLimit int
}

// Dependencies are the services behind the socket. Poster and Ingester may be
// nil, which disables the matching message types.
type Dependencies struct {
	Assistant Answerer
	Poster    Poster
	Ingester  URLIngester
}

type WSServer struct {
	config Config
	deps   Dependencies

	mu      sync.RWMutex
	clients map[*client]bool
}

var _ notify.Notifier = (*WSServer)(nil)

// client is one socket. gorilla connections allow a single concurrent writer.
type client struct {
	userID string
	conn   *websocket.Conn
	wmu    sync.Mutex
}

func (c *client) send(msg Message) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.conn.WriteJSON(msg); err != nil {
		logger.Debug("Error sending message: %v", err)
	}
}

func (c *client) sendText(msgType, content string) {
	c.send(Message{Type: msgType, Content: content})
}

func NewWSServer(config Config, deps Dependencies) *WSServer {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}

	return &WSServer{
		config:  config,
		deps:    deps,
		clients: make(map[*client]bool),
	}
}

// Handler serves the /ws socket and the /health check.
func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Notify pushes n to every connected member except its author.
func (s *WSServer) Notify(ctx context.Context, n notify.Notification) error {
	s.mu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if c.userID != n.ActorID {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.send(Message{
			Type:    TypeNotification,
			Content: n.Body,
			Data:    map[string]string{"kind": n.Kind, "title": n.Title, "author": n.ActorID},
		})
	}
	return nil
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{userID: userID, conn: conn}
	s.register(c)
	defer func() {
		s.unregister(c)
		conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var history []models.Turn
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("Error reading message: %v", err)
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendText(TypeError, "invalid message")
			continue
		}

		switch msg.Type {
		case TypeChat, "":
			history = s.handleChat(ctx, c, history, msg)
		case TypePost:
			s.handlePost(ctx, c, msg)
		case TypeIngestURL:
			// Crawls take a while; the socket keeps serving chat meanwhile.
			wg.Add(1)
			go func(msg Message) {
				defer wg.Done()
				s.handleIngestURL(ctx, c, msg)
			}(msg)
		default:
			c.sendText(TypeError, fmt.Sprintf("unknown message type %q", msg.Type))
		}
	}
}

func (s *WSServer) register(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = true
}

func (s *WSServer) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

// handleChat answers msg and returns the connection's updated history. A
// history sent with the message replaces the one kept on the connection.
func (s *WSServer) handleChat(ctx context.Context, c *client, history []models.Turn, msg Message) []models.Turn {
	if msg.History != nil {
		history = msg.History
	}
	if strings.TrimSpace(msg.Content) == "" {
		c.sendText(TypeError, "empty message")
		return history
	}

	turns := append(append([]models.Turn(nil), history...), models.Turn{Role: models.RoleUser, Text: msg.Content})

	var reply string
	if s.config.Streaming {
		sources, textCh, errCh, err := s.deps.Assistant.AnswerStream(ctx, turns)
		if err != nil {
			c.sendText(TypeError, userError(err))
			return history
		}
		c.send(Message{Type: TypeSources, Data: wireSources(sources)})

		var sb strings.Builder
		for piece := range textCh {
			sb.WriteString(piece)
			c.sendText(TypeStream, piece)
		}
		if err := <-errCh; err != nil {
			c.sendText(TypeError, userError(err))
			return history
		}
		c.sendText(TypeStreamEnd, "")
		reply = sb.String()
	} else {
		answer, err := s.deps.Assistant.Answer(ctx, turns)
		if err != nil {
			c.sendText(TypeError, userError(err))
			return history
		}
		c.send(Message{Type: TypeResponse, Content: answer.Text, Data: wireSources(answer.Sources)})
		reply = answer.Text
	}

	turns = append(turns, models.Turn{Role: models.RoleAssistant, Text: reply})
	if len(turns) > s.config.HistoryLimit {
		turns = turns[len(turns)-s.config.HistoryLimit:]
	}
	return turns
}

func (s *WSServer) handlePost(ctx context.Context, c *client, msg Message) {
	if s.deps.Poster == nil {
		c.sendText(TypeError, "posting is not available")
		return
	}

	posted, err := s.deps.Poster.PostMessage(ctx, c.userID, msg.Content)
	if err != nil {
		c.sendText(TypeError, userError(err))
		return
	}
	c.send(Message{Type: TypePosted, Content: posted.Text, Data: map[string]string{"id": posted.ID}})
}

func (s *WSServer) handleIngestURL(ctx context.Context, c *client, msg Message) {
	if s.deps.Ingester == nil {
		c.sendText(TypeError, "ingestion is not available")
		return
	}

	url := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	c.sendText(TypeStatus, fmt.Sprintf("Processing URL: %s", url))

	results, err := s.deps.Ingester.IngestURL(ctx, c.userID, url)
	if err != nil {
		logger.Error("Failed to ingest %s for %s: %v", url, c.userID, err)
		c.sendText(TypeError, "Failed to ingest URL: "+userError(err))
		return
	}

	chunks := 0
	for _, r := range results {
		chunks += r.IndexedChunks
	}
	c.send(Message{
		Type:    TypeStatus,
		Content: fmt.Sprintf("Indexed %d pages (%d chunks)", len(results), chunks),
		Data:    results,
	})
}

func wireSources(candidates []models.RetrievalCandidate) []Source {
	sources := make([]Source, 0, len(candidates))
	for _, c := range candidates {
		sources = append(sources, Source{
			Type:   string(c.SourceType),
			Text:   c.Text,
			Score:  c.Score,
			Author: c.AuthorName,
		})
	}
	return sources
}

// userError hides provider details from the client.
func userError(err error) string {
	var completionErr *types.CompletionError
	switch {
	case errors.Is(err, types.ErrEmptyInput):
		return "message is empty"
	case errors.As(err, &completionErr):
		return "the assistant is unavailable, please try again"
	default:
		return "something went wrong"
	}
}
