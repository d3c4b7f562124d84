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

type channelInput struct {
	Tag         string `validate:"oneof=group_doctors group_patients"`
	RequesterID string `validate:"required"`
}

// GetOrCreateGroupChannel enrols the requester in the standing channel for tag,
// creating the channel on first use. Enrolling twice is a no-op.
func (s *Service) GetOrCreateGroupChannel(ctx context.Context, tag string, requesterID string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "chat.GetOrCreateGroupChannel")
	defer span.End()
	span.SetAttributes(attribute.String("channel.tag", tag))

	id, err := s.getOrCreateChannel(ctx, tag, requesterID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return id, nil
}

func (s *Service) getOrCreateChannel(ctx context.Context, tag string, requesterID string) (string, error) {
	if err := s.validate.Struct(channelInput{Tag: tag, RequesterID: requesterID}); err != nil {
		return "", invalidErr(err)
	}
	kind := models.ConversationKind(tag)

	for attempt := 0; attempt < createAttempts; attempt++ {
		conv, err := s.conversations.FindCohort(ctx, kind)
		if err == nil {
			if err := s.participants.AddParticipant(ctx, conv.ID, requesterID); err != nil {
				return "", mapMembershipErr(err)
			}
			s.emit(ctx, telemetry.AuditEvent{
				Type:           telemetry.EventChannelEnrolled,
				Text:           "enrolled in cohort channel",
				UserID:         requesterID,
				ConversationID: conv.ID,
				Kind:           tag,
			})
			return conv.ID, nil
		}
		if !errors.Is(err, repositories.ErrConversationNotFound) {
			return "", storageErr(err)
		}

		name := kind.ChannelName()
		conv, err = s.conversations.CreateWithParticipants(ctx,
			models.Conversation{Kind: kind, Name: &name},
			[]string{requesterID})
		switch {
		case errors.Is(err, repositories.ErrDuplicate):
			s.logger.Debug("cohort channel created concurrently, refetching", "kind", tag, "attempt", attempt+1)
			continue
		case err != nil:
			return "", mapMembershipErr(err)
		}

		observability.IncConversationCreated(tag)
		s.emit(ctx, telemetry.AuditEvent{
			Type:           telemetry.EventConversationCreated,
			Text:           "cohort channel created",
			UserID:         requesterID,
			ConversationID: conv.ID,
			Kind:           tag,
		})
		s.logger.Info("cohort channel created", "conversation_id", conv.ID, "kind", tag)
		return conv.ID, nil
	}
	return "", storageErr(errors.New("cohort channel lookup kept losing creation races"))
}

func mapMembershipErr(err error) error {
	switch {
	case errors.Is(err, repositories.ErrProfileNotFound):
		return notFoundErr("user")
	case errors.Is(err, repositories.ErrConversationNotFound):
		return notFoundErr("conversation")
	default:
		return storageErr(err)
	}
}
