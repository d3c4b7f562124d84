package observability

import (
	"context"
	"log/slog"
	"time"
)

// Routing key and event names for websocket lifecycle events.
const (
	WSEventsRoutingKey = "ws_events.conversations"

	WSConnect    = "ws_connect"
	WSDisconnect = "ws_disconnect"
	WSError      = "ws_error"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// HeaderPublisher is satisfied by the RabbitMQ publisher.
type HeaderPublisher interface {
	PublishWithHeaders(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// EventSink publishes operational events and counts publish failures.
type EventSink struct {
	publisher HeaderPublisher
	logger    *slog.Logger
}

func NewEventSink(publisher HeaderPublisher, logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSink{publisher: publisher, logger: logger}
}

// WSLifecycle describes one websocket connect, disconnect or error.
type WSLifecycle struct {
	Event          string
	ConversationID string
	ConnID         string
	Identity       Identity
	ConnectedAt    time.Time
	Reason         string
	RequestID      string
	TraceID        string
}

// PublishWS builds the ws_events envelope and publishes it. A nil sink is a no-op.
func (s *EventSink) PublishWS(ctx context.Context, ev WSLifecycle) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	var duration int64
	if ev.Event != WSConnect {
		duration = time.Since(ev.ConnectedAt).Milliseconds()
	}
	envelope := EventEnvelope{
		EventType: "ws_events",
		EventName: ev.Event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        "conversation",
				"resource_id": ev.ConversationID,
				"event":       ev.Event,
				"conn_id":     ev.ConnID,
				"duration_ms": duration,
				"reason":      ev.Reason,
			},
			"identity": ev.Identity,
		},
	}
	err := s.publisher.PublishWithHeaders(ctx, WSEventsRoutingKey, envelope, BuildHeaders(ev.RequestID, ev.TraceID))
	if err != nil {
		IncAMQPPublishError()
		s.logger.Warn("ws event publish failed", "event", ev.Event, "conn_id", ev.ConnID, "error", err)
	}
	return err
}
