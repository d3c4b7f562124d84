package chat

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"consult-chat/internal/models"
	"consult-chat/internal/observability"
	"consult-chat/internal/repositories"
	"consult-chat/internal/telemetry"
)

// createAttempts bounds find-then-create retries after losing a uniqueness race.
const createAttempts = 3

type directInput struct {
	UserA string `validate:"required"`
	UserB string `validate:"required,nefield=UserA"`
}

// directKey is the order-independent uniqueness key of a user pair.
func directKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// FindOrCreateDirectConversation returns the direct conversation between two
// users, creating it with both as participants when none exists.
func (s *Service) FindOrCreateDirectConversation(ctx context.Context, userA, userB string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "chat.FindOrCreateDirectConversation")
	defer span.End()

	id, err := s.findOrCreateDirect(ctx, userA, userB)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("conversation.id", id))
	return id, nil
}

func (s *Service) findOrCreateDirect(ctx context.Context, userA, userB string) (string, error) {
	if err := s.validate.Struct(directInput{UserA: userA, UserB: userB}); err != nil {
		return "", invalidErr(err)
	}

	profiles, err := s.profiles.Bulk(ctx, []string{userA, userB})
	if err != nil {
		return "", storageErr(err)
	}
	a, okA := profiles[userA]
	b, okB := profiles[userB]
	if !okA || !okB {
		return "", notFoundErr("user")
	}
	if a.Role == models.RolePatient && b.Role == models.RolePatient {
		observability.IncPolicyRejection()
		s.emit(ctx, telemetry.AuditEvent{
			Type:   telemetry.EventPolicyRejected,
			Level:  "warn",
			Text:   "direct conversation between two patients rejected",
			UserID: userA,
			Kind:   string(models.KindDirect),
		})
		return "", ErrPolicyViolation
	}

	key := directKey(userA, userB)
	for attempt := 0; attempt < createAttempts; attempt++ {
		conv, err := s.conversations.FindDirect(ctx, userA, userB)
		if err == nil {
			return conv.ID, nil
		}
		if !errors.Is(err, repositories.ErrConversationNotFound) {
			return "", storageErr(err)
		}

		conv, err = s.conversations.CreateWithParticipants(ctx,
			models.Conversation{Kind: models.KindDirect, DirectKey: &key},
			[]string{userA, userB})
		switch {
		case errors.Is(err, repositories.ErrDuplicate):
			s.logger.Debug("direct conversation created concurrently, refetching", "direct_key", key, "attempt", attempt+1)
			continue
		case errors.Is(err, repositories.ErrProfileNotFound):
			return "", notFoundErr("user")
		case err != nil:
			return "", storageErr(err)
		}

		observability.IncConversationCreated(string(models.KindDirect))
		s.emit(ctx, telemetry.AuditEvent{
			Type:           telemetry.EventConversationCreated,
			Text:           "direct conversation created",
			UserID:         userA,
			ConversationID: conv.ID,
			Kind:           string(models.KindDirect),
		})
		s.logger.Info("direct conversation created", "conversation_id", conv.ID, "user_a", userA, "user_b", userB)
		return conv.ID, nil
	}
	return "", storageErr(errors.New("direct conversation lookup kept losing creation races"))
}
