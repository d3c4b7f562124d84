package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types emitted by the chat service.
const (
	EventConversationCreated = "conversation_created"
	EventChannelEnrolled     = "channel_enrolled"
	EventPolicyRejected      = "policy_rejected"
	EventAuditTest           = "audit_test"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *slog.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level          string `json:"level"`
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
	Kind           string `json:"kind,omitempty"`
}

// AuditEvent is what callers hand to Emit; the envelope is filled in from it.
type AuditEvent struct {
	Type           string
	Level          string
	Text           string
	UserID         string
	ConversationID string
	Kind           string
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *slog.Logger) *AuditEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
	}
}

// Emit publishes the event. Failures are logged and never returned.
func (e *AuditEmitter) Emit(ctx context.Context, ev AuditEvent) {
	if e == nil || e.publisher == nil {
		return
	}
	if ev.Level == "" {
		ev.Level = "info"
	}

	requestID := RequestIDFromContext(ctx)
	var userID *string
	if ev.UserID != "" {
		id := ev.UserID
		userID = &id
	}

	e.logger.Debug("audit emit", "event_type", ev.Type, "request_id", requestID, "user_id", ev.UserID, "conversation_id", ev.ConversationID)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     ev.Type,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:          ev.Level,
			Text:           ev.Text,
			ConversationID: ev.ConversationID,
			Kind:           ev.Kind,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.logger.Warn("audit publish failed", "event_type", ev.Type, "error", err)
	}
}

type requestIDKey struct{}

// WithRequestID stores the request id for audit envelopes emitted further down the call chain.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the stored request id or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
