package chat

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"consult-chat/internal/models"
	"consult-chat/internal/repositories"
)

// ListConversationsForUser returns every conversation the user participates in,
// most recently active first. Profile, last-message and unread enrichment are
// best effort: a failed lookup leaves the field empty instead of failing the list.
func (s *Service) ListConversationsForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	ctx, span := s.tracer.Start(ctx, "chat.ListConversationsForUser")
	defer span.End()

	memberships, err := s.participants.ListForUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storageErr(err)
	}
	if len(memberships) == 0 {
		return []models.ConversationSummary{}, nil
	}

	ids := lo.Uniq(lo.Map(memberships, func(p models.Participant, _ int) string { return p.ConversationID }))
	span.SetAttributes(attribute.Int("conversations.count", len(ids)))

	convs, err := s.conversations.GetConversations(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storageErr(err)
	}
	members, err := s.participants.ListForConversations(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storageErr(err)
	}

	memberIDs := lo.Uniq(lo.Map(members, func(p models.Participant, _ int) string { return p.UserID }))
	profiles, err := s.profiles.Bulk(ctx, memberIDs)
	if err != nil {
		s.logger.Warn("participant profiles unavailable", "user_id", userID, "error", err)
		profiles = nil
	}
	latest, err := s.messages.LatestMessages(ctx, ids)
	if err != nil {
		s.logger.Warn("last messages unavailable", "user_id", userID, "error", err)
		latest = nil
	}
	unread, err := s.messages.CountUnread(ctx, userID, ids)
	if err != nil {
		s.logger.Warn("unread counts unavailable", "user_id", userID, "error", err)
		unread = nil
	}

	byConversation := lo.GroupBy(members, func(p models.Participant) string { return p.ConversationID })
	out := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary := models.ConversationSummary{
			Conversation: conv,
			Participants: make([]models.ParticipantView, 0, len(byConversation[conv.ID])),
			UnreadCount:  unread[conv.ID],
		}
		for _, p := range byConversation[conv.ID] {
			view := models.ParticipantView{UserID: p.UserID, JoinedAt: p.JoinedAt, LastReadAt: p.LastReadAt}
			if profile, ok := profiles[p.UserID]; ok {
				view.Profile = &profile
			}
			summary.Participants = append(summary.Participants, view)
		}
		if msg, ok := latest[conv.ID]; ok {
			summary.LastMessage = &msg
		}
		out = append(out, summary)
	}

	sortByActivity(out)
	return out, nil
}

// sortByActivity orders by last activity descending with never-active conversations
// last, breaking ties by creation time descending.
func sortByActivity(items []models.ConversationSummary) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.LastActivityAt == nil && b.LastActivityAt != nil:
			return false
		case a.LastActivityAt != nil && b.LastActivityAt == nil:
			return true
		case a.LastActivityAt != nil && !a.LastActivityAt.Equal(*b.LastActivityAt):
			return a.LastActivityAt.After(*b.LastActivityAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// MarkConversationRead moves the user's read cursor to the storage clock's now.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	ctx, span := s.tracer.Start(ctx, "chat.MarkConversationRead")
	defer span.End()

	if conversationID == "" || userID == "" {
		return invalidErr(errors.New("conversation id and user id are required"))
	}
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	readAt, err := s.participants.MarkRead(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotParticipant) {
			return ErrNotParticipant
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return storageErr(err)
	}
	span.SetAttributes(attribute.String("read.at", readAt.UTC().Format(time.RFC3339Nano)))
	return nil
}
