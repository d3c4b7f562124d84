package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"consult-chat/internal/chat"
	"consult-chat/internal/middleware"
	"consult-chat/internal/models"
)

// ChatService is the chat core as seen by the HTTP layer.
type ChatService interface {
	FindOrCreateDirectConversation(ctx context.Context, userA, userB string) (string, error)
	GetOrCreateGroupChannel(ctx context.Context, tag string, requesterID string) (string, error)
	SendMessage(ctx context.Context, conversationID, senderID, content string) (models.Message, error)
	GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	MarkConversationRead(ctx context.Context, conversationID, userID string) error
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// ConversationHandler serves the conversation list, direct chats and message history.
type ConversationHandler struct {
	service ChatService
	logger  *slog.Logger
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(service ChatService, logger *slog.Logger) *ConversationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationHandler{service: service, logger: logger}
}

// ListConversations returns the caller's conversations, most recently active first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := middleware.UserID(c)

	list, err := h.service.ListConversationsForUser(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err, "failed to load conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// StartDirect finds or creates the direct conversation with a peer.
func (h *ConversationHandler) StartDirect(c *gin.Context) {
	var req struct {
		PeerID string `json:"peer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.service.FindOrCreateDirectConversation(c.Request.Context(), middleware.UserID(c), req.PeerID)
	if err != nil {
		h.writeError(c, err, "could not open conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id})
}

// GetMessages returns one page of history, oldest first.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID := c.Param("id")
	limit, offset, ok := parsePage(c)
	if !ok {
		return
	}
	if !h.requireMember(c, conversationID) {
		return
	}

	msgs, err := h.service.GetMessages(c.Request.Context(), conversationID, limit, offset)
	if err != nil {
		h.writeError(c, err, "failed to load messages")
		return
	}
	limit, offset = chat.NormalizePage(limit, offset)
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "limit": limit, "offset": offset})
}

// PostMessage stores a message from the caller. Live subscribers learn about it
// from the change feed, not from this handler.
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	conversationID := c.Param("id")

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.requireMember(c, conversationID) {
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), conversationID, middleware.UserID(c), req.Content)
	if err != nil {
		h.writeError(c, err, "failed to store message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead moves the caller's read cursor to now.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	if err := h.service.MarkConversationRead(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		h.writeError(c, err, "could not mark conversation read")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) requireMember(c *gin.Context, conversationID string) bool {
	member, err := h.service.IsParticipant(c.Request.Context(), conversationID, middleware.UserID(c))
	if err != nil {
		h.writeError(c, err, "membership check failed")
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
		return false
	}
	return true
}

func (h *ConversationHandler) writeError(c *gin.Context, err error, fallback string) {
	writeError(c, h.logger, err, fallback)
}

func parsePage(c *gin.Context) (int, int, bool) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, 0, false
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return 0, 0, false
	}
	return limit, offset, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// writeError maps chat errors onto status codes. Storage details are logged, never returned.
func writeError(c *gin.Context, logger *slog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrPolicyViolation), errors.Is(err, chat.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		logger.Error(fallback, "path", c.FullPath(), "request_id", requestIDFromContext(c), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
