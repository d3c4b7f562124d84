package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"consult-chat/internal/middleware"
)

// ChannelHandler enrols callers into the standing cohort channels.
type ChannelHandler struct {
	service ChatService
	logger  *slog.Logger
}

// NewChannelHandler constructs a ChannelHandler.
func NewChannelHandler(service ChatService, logger *slog.Logger) *ChannelHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelHandler{service: service, logger: logger}
}

// JoinChannel handles POST /channels/:tag/join. Any authenticated caller may join
// either cohort; role restrictions belong to the identity service.
func (h *ChannelHandler) JoinChannel(c *gin.Context) {
	id, err := h.service.GetOrCreateGroupChannel(c.Request.Context(), c.Param("tag"), middleware.UserID(c))
	if err != nil {
		writeError(c, h.logger, err, "could not join channel")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id})
}
