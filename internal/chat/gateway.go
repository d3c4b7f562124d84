package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/lo/mutable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"consult-chat/internal/models"
	"consult-chat/internal/observability"
	"consult-chat/internal/repositories"
)

const (
	DefaultPageSize = 40
	MaxPageSize     = 200
)

type sendInput struct {
	ConversationID string `validate:"required"`
	SenderID       string `validate:"required"`
	Content        string `validate:"required"`
}

// SendMessage persists a trimmed, non-empty message and returns it with the
// sender's identity attached when the profile can be resolved.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, content string) (models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "chat.SendMessage")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	in := sendInput{ConversationID: conversationID, SenderID: senderID, Content: strings.TrimSpace(content)}
	if err := s.validate.Struct(in); err != nil {
		return models.Message{}, invalidErr(err)
	}

	msg, err := s.messages.CreateMessage(ctx, in.ConversationID, in.SenderID, in.Content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch {
		case errors.Is(err, repositories.ErrConversationNotFound):
			return models.Message{}, notFoundErr("conversation")
		case errors.Is(err, repositories.ErrProfileNotFound):
			return models.Message{}, notFoundErr("sender")
		default:
			return models.Message{}, storageErr(err)
		}
	}
	observability.IncMessageSent()

	if s.notifier != nil {
		if err := s.notifier.NotifyMessage(ctx, msg); err != nil {
			s.logger.Warn("message notification failed", "message_id", msg.ID, "conversation_id", msg.ConversationID, "error", err)
		}
	}

	if profile, err := s.profiles.Get(ctx, in.SenderID); err == nil {
		msg.Sender = profile.Sender()
	} else {
		s.logger.Debug("sender enrichment skipped", "sender_id", in.SenderID, "error", err)
	}
	return msg, nil
}

// NormalizePage applies the default page size, the page cap and a zero floor on offset.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GetMessages returns one page of history, oldest first. Offset counts back from
// the newest message, so offset 0 is the most recent page.
func (s *Service) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "chat.GetMessages")
	defer span.End()

	if strings.TrimSpace(conversationID) == "" {
		return nil, invalidErr(errors.New("conversation id is required"))
	}
	limit, offset = NormalizePage(limit, offset)
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Int("page.limit", limit),
		attribute.Int("page.offset", offset),
	)

	newestFirst, err := s.messages.ListMessages(ctx, conversationID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storageErr(err)
	}
	if newestFirst == nil {
		return []models.Message{}, nil
	}
	mutable.Reverse(newestFirst)
	return newestFirst, nil
}
