package chat

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"consult-chat/internal/models"
	"consult-chat/internal/repositories"
	"consult-chat/internal/telemetry"
)

// ProfileDirectory resolves user profiles.
type ProfileDirectory interface {
	Get(ctx context.Context, userID string) (models.Profile, error)
	Bulk(ctx context.Context, userIDs []string) (map[string]models.Profile, error)
}

// Subscriber registers live message callbacks for one conversation.
type Subscriber interface {
	Subscribe(conversationID string, onMessage func(models.Message)) (unsubscribe func())
}

// MessageNotifier announces a committed message to an external change feed.
type MessageNotifier interface {
	NotifyMessage(ctx context.Context, msg models.Message) error
}

// Auditor records security-relevant domain events.
type Auditor interface {
	Emit(ctx context.Context, ev telemetry.AuditEvent)
}

// Service implements direct chats, cohort channels, message storage, the
// conversation list and live updates on top of the repositories.
type Service struct {
	conversations repositories.ConversationRepository
	participants  repositories.ParticipantRepository
	messages      repositories.MessageRepository
	profiles      ProfileDirectory

	live     Subscriber
	notifier MessageNotifier
	audit    Auditor
	logger   *slog.Logger
	tracer   trace.Tracer
	validate *validator.Validate
}

type Option func(*Service)

func WithSubscriber(live Subscriber) Option { return func(s *Service) { s.live = live } }

func WithNotifier(n MessageNotifier) Option { return func(s *Service) { s.notifier = n } }

func WithAuditor(a Auditor) Option { return func(s *Service) { s.audit = a } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// NewService wires a Service. Live updates, notifications and auditing are optional.
func NewService(
	conversations repositories.ConversationRepository,
	participants repositories.ParticipantRepository,
	messages repositories.MessageRepository,
	profiles ProfileDirectory,
	opts ...Option,
) *Service {
	s := &Service{
		conversations: conversations,
		participants:  participants,
		messages:      messages,
		profiles:      profiles,
		logger:        slog.Default(),
		tracer:        otel.Tracer("consult-chat/chat"),
		validate:      validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(ctx context.Context, ev telemetry.AuditEvent) {
	if s.audit != nil {
		s.audit.Emit(ctx, ev)
	}
}

// IsParticipant reports whether userID is a member of conversationID.
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	ok, err := s.participants.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return false, storageErr(err)
	}
	return ok, nil
}

// Subscribe registers onMessage for new messages in the conversation. Without a
// live feed the returned unsubscribe is a no-op.
func (s *Service) Subscribe(conversationID string, onMessage func(models.Message)) func() {
	if s.live == nil || conversationID == "" || onMessage == nil {
		return func() {}
	}
	return s.live.Subscribe(conversationID, onMessage)
}
