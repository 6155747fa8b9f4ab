// Package community handles the shared chat room: posting messages, keeping
// them searchable and cleaning up after members who leave.
package community

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xhad/commons/internal/logger"
	"github.com/xhad/commons/internal/models"
	"github.com/xhad/commons/internal/types"
	"github.com/xhad/commons/pkg/notify"
)

// DeletedContent replaces the text of messages whose author deleted their account.
const DeletedContent = "[Deleted User Content]"

// Enqueuer schedules a notification without waiting for its delivery.
type Enqueuer interface {
	Enqueue(n notify.Notification) error
}

type Repository interface {
	types.DocumentRepository
	types.MessageRepository
	types.ProfileRepository
}

type Service struct {
	repo     Repository
	embedder types.Embedder
	notifier Enqueuer
}

// NewService wires the chat room. notifier may be nil.
func NewService(repo Repository, embedder types.Embedder, notifier Enqueuer) *Service {
	return &Service{
		repo:     repo,
		embedder: embedder,
		notifier: notifier,
	}
}

// PostMessage stores a chat message and announces it to the other members.
// An embedding failure does not block the post: the message is stored
// without a vector and picked up later by ReembedPending.
func (s *Service) PostMessage(ctx context.Context, authorID, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, types.ErrEmptyInput
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		logger.Warn("Storing message without embedding: %v", err)
		vector = nil
	}

	msg, err := s.repo.InsertMessage(ctx, models.Message{
		AuthorID:  authorID,
		Text:      text,
		Embedding: vector,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to post message: %w", err)
	}

	if s.notifier != nil {
		n := notify.Notification{
			Kind:      notify.KindNewMessage,
			ActorID:   authorID,
			Title:     "New message in the community",
			Body:      preview(text),
			CreatedAt: msg.CreatedAt,
		}
		if err := s.notifier.Enqueue(n); err != nil {
			logger.Warn("Dropped notification for message %s: %v", msg.ID, err)
		}
	}

	return msg, nil
}

// Messages returns the latest messages, oldest first.
func (s *Service) Messages(ctx context.Context, limit int) ([]models.Message, error) {
	msgs, err := s.repo.ListMessages(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// ReembedPending embeds up to limit messages that were stored without a
// vector and returns how many were updated.
func (s *Service) ReembedPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.ListUnembeddedMessages(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending messages: %w", err)
	}

	updated := 0
	for _, msg := range pending {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		vector, err := s.embedder.Embed(ctx, msg.Text)
		if err != nil {
			logger.Warn("Message %s still has no embedding: %v", msg.ID, err)
			continue
		}
		if err := s.repo.SetMessageEmbedding(ctx, msg.ID, vector); err != nil {
			return updated, fmt.Errorf("failed to update message embedding: %w", err)
		}
		updated++
	}

	logger.Info("Re-embedded %d of %d pending messages", updated, len(pending))
	return updated, nil
}

func (s *Service) SetNickname(ctx context.Context, userID, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return types.ErrEmptyInput
	}
	if err := s.repo.SetNickname(ctx, userID, nickname); err != nil {
		return fmt.Errorf("failed to set nickname: %w", err)
	}
	return nil
}

// DeleteAccount removes the user's documents, chunks included, and replaces
// the text of their chat messages. The messages stay so conversations keep
// their shape.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if userID == "" {
		return types.ErrEmptyInput
	}

	docs, err := s.repo.ListDocuments(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	for _, doc := range docs {
		err := s.repo.DeleteDocument(ctx, doc.ID, userID)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("failed to delete document %s: %w", doc.ID, err)
		}
	}

	if err := s.repo.AnonymizeMessages(ctx, userID, DeletedContent); err != nil {
		return fmt.Errorf("failed to anonymize messages: %w", err)
	}

	logger.Info("Deleted account data for %s (%d documents)", userID, len(docs))
	return nil
}

func preview(text string) string {
	const maxRunes = 80
	r := []rune(text)
	if len(r) <= maxRunes {
		return text
	}
	return string(r[:maxRunes]) + "…"
}
