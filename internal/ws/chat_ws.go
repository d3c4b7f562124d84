package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"consult-chat/internal/middleware"
	"consult-chat/internal/models"
	"consult-chat/internal/observability"
	"consult-chat/internal/telemetry"
)

// ConversationFeed is the part of the chat service a live connection needs.
type ConversationFeed interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	Subscribe(conversationID string, onMessage func(models.Message)) func()
}

// ConversationWebSocketHandler pushes newly stored messages of one conversation
// to an authenticated participant.
type ConversationWebSocketHandler struct {
	feed   ConversationFeed
	hub    *Hub
	events *observability.EventSink
	logger *slog.Logger
}

// NewConversationWebSocketHandler constructs a ConversationWebSocketHandler.
func NewConversationWebSocketHandler(feed ConversationFeed, hub *Hub, events *observability.EventSink, logger *slog.Logger) *ConversationWebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationWebSocketHandler{feed: feed, hub: hub, events: events, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle checks membership, upgrades the connection and subscribes it to the
// conversation until either side closes.
func (h *ConversationWebSocketHandler) Handle(c *gin.Context) {
	conversationID := c.Param("id")
	userID := middleware.UserID(c)

	ctx, span := otel.Tracer("consult-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	member, err := h.feed.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		h.logger.Error("ws membership check failed", "conversation_id", conversationID, "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("ws upgrade failed", "conversation_id", conversationID, "error", err)
		return
	}

	requestID := telemetry.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = observability.RequestIDFromRequest(c.Request)
	}
	info := ConnInfo{
		ConnID:         newConnID(),
		ConversationID: conversationID,
		Identity:       observability.IdentityFromRequest(c.Request, userID),
		RequestID:      requestID,
		TraceID:        span.SpanContext().TraceID().String(),
		ConnectedAt:    time.Now(),
	}
	client := newClient(conn, info, h.logger)
	h.hub.Add(client)
	unsubscribe := h.feed.Subscribe(conversationID, func(msg models.Message) {
		client.Enqueue(models.MessageEvent{Type: "message", Message: &msg})
	})

	// The request context ends with this handler; lifecycle events outlive it.
	eventCtx := context.WithoutCancel(ctx)
	observability.IncWSActive()
	observability.IncWSEvent(observability.WSConnect)
	_ = h.events.PublishWS(eventCtx, info.lifecycle(observability.WSConnect, ""))
	h.logger.Debug("ws connected", "conn_id", info.ConnID, "conversation_id", conversationID, "user_id", userID)

	go client.writePump()
	go func() {
		err := client.readPump()
		unsubscribe()
		h.hub.Remove(client)
		client.Close()

		reason := ""
		if err != nil {
			reason = err.Error()
		}
		if isUnexpectedClose(err) {
			observability.IncWSEvent(observability.WSError)
			_ = h.events.PublishWS(eventCtx, info.lifecycle(observability.WSError, reason))
		}
		observability.DecWSActive()
		observability.IncWSEvent(observability.WSDisconnect)
		_ = h.events.PublishWS(eventCtx, info.lifecycle(observability.WSDisconnect, reason))
		h.logger.Debug("ws disconnected", "conn_id", info.ConnID, "conversation_id", conversationID, "reason", reason)
	}()
}
