package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"consult-chat/internal/chat"
	"consult-chat/internal/middleware"
	"consult-chat/internal/mocks"
	"consult-chat/internal/models"
)

var _ ChatService = (*mocks.ChatServiceMock)(nil)

func setupConversationRouter(service ChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), func(c *gin.Context) {
		c.Set(middleware.UserIDKey, "u1")
		c.Next()
	})
	conversations := NewConversationHandler(service, nil)
	channels := NewChannelHandler(service, nil)
	r.GET("/conversations", conversations.ListConversations)
	r.POST("/conversations/direct", conversations.StartDirect)
	r.GET("/conversations/:id/messages", conversations.GetMessages)
	r.POST("/conversations/:id/messages", conversations.PostMessage)
	r.POST("/conversations/:id/read", conversations.MarkRead)
	r.POST("/channels/:tag/join", channels.JoinChannel)
	return r
}

func serve(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListConversationsSuccess(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	router := setupConversationRouter(service)

	service.On("ListConversationsForUser", mock.Anything, "u1").
		Return([]models.ConversationSummary{{Conversation: models.Conversation{ID: "c1", Kind: models.KindDirect}, UnreadCount: 2}}, nil).Once()

	rec := serve(router, http.MethodGet, "/conversations", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "c1", resp.Conversations[0].ID)
	assert.Equal(t, 2, resp.Conversations[0].UnreadCount)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	service.AssertExpectations(t)
}

func TestListConversationsStorageError(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	router := setupConversationRouter(service)

	service.On("ListConversationsForUser", mock.Anything, "u1").
		Return(nil, fmt.Errorf("%w: connection refused", chat.ErrStorage)).Once()

	rec := serve(router, http.MethodGet, "/conversations", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	service.AssertExpectations(t)
}

func TestStartDirectStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"created", nil, http.StatusOK},
		{"two patients", chat.ErrPolicyViolation, http.StatusForbidden},
		{"unknown peer", fmt.Errorf("%w: user", chat.ErrNotFound), http.StatusNotFound},
		{"self", fmt.Errorf("%w: same user", chat.ErrInvalidInput), http.StatusBadRequest},
		{"storage", fmt.Errorf("%w: boom", chat.ErrStorage), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := new(mocks.ChatServiceMock)
			router := setupConversationRouter(service)
			id := ""
			if tc.err == nil {
				id = "c9"
			}
			service.On("FindOrCreateDirectConversation", mock.Anything, "u1", "u2").Return(id, tc.err).Once()

			rec := serve(router, http.MethodPost, "/conversations/direct", `{"peer_id":"u2"}`)

			require.Equal(t, tc.status, rec.Code)
			if tc.err == nil {
				assert.JSONEq(t, `{"conversation_id":"c9"}`, rec.Body.String())
			}
			service.AssertExpectations(t)
		})
	}
}

func TestStartDirectInvalidBody(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	router := setupConversationRouter(service)

	rec := serve(router, http.MethodPost, "/conversations/direct", `{"peer_id":5}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertNotCalled(t, "FindOrCreateDirectConversation", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetMessagesSuccess(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	router := setupConversationRouter(service)

	service.On("IsParticipant", mock.Anything, "c1", "u1").Return(true, nil).Once()
	service.On("GetMessages", mock.Anything, "c1", 10, 20).
		Return([]models.Message{{ID: "m1", ConversationID: "c1", SenderID: "u2", Content: "hi"}}, nil).Once()

	rec := serve(router, http.MethodGet, "/conversations/c1/messages?limit=10&offset=20", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
		Limit    int              `json:"limit"`
		Offset   int              `json:"offset"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hi", resp.Messages[0].Content)
	assert.Equal(t, 10, resp.Limit)
	assert.Equal(t, 20, resp.Offset)
	service.AssertExpectations(t)
}

func TestGetMessagesDefaultsPage(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	router := setupConversationRouter(service)

	service.On("IsParticipant", mock.Anything, "c1", "u1").Return(true, nil).Once()
	service.On("GetMessages", mock.Anything, "c1", 0, 0).Return([]models.Message{}, nil).Once()

	rec := serve(router, http.MethodGet, "/conversations/c1/messages", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"messages":[],"limit":%d,"offset":0}`, chat.DefaultPageSize), rec.Body.String())
}

func TestGetMessagesInvalidPage(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	router := setupConversationRouter(service)

	rec := serve(router, http.MethodGet, "/conversations/c1/messages?limit=ten", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertNotCalled(t, "IsParticipant", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetMessagesForbiddenForNonMember(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	router := setupConversationRouter(service)

	service.On("IsParticipant", mock.Anything, "c1", "u1").Return(false, nil).Once()

	rec := serve(router, http.MethodGet, "/conversations/c1/messages", "")

	require.Equal(t, http.StatusForbidden, rec.Code)
	service.AssertNotCalled(t, "GetMessages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPostMessageSuccess(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	router := setupConversationRouter(service)

	service.On("IsParticipant", mock.Anything, "c1", "u1").Return(true, nil).Once()
	service.On("SendMessage", mock.Anything, "c1", "u1", "hey").
		Return(models.Message{ID: "m3", ConversationID: "c1", SenderID: "u1", Content: "hey"}, nil).Once()

	rec := serve(router, http.MethodPost, "/conversations/c1/messages", `{"content":"hey"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	assert.Equal(t, "m3", msg.ID)
	service.AssertExpectations(t)
}

func TestPostMessageBlankContent(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	router := setupConversationRouter(service)

	service.On("IsParticipant", mock.Anything, "c1", "u1").Return(true, nil).Once()
	service.On("SendMessage", mock.Anything, "c1", "u1", "   ").
		Return(nil, fmt.Errorf("%w: content is required", chat.ErrInvalidInput)).Once()

	rec := serve(router, http.MethodPost, "/conversations/c1/messages", `{"content":"   "}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	service.AssertExpectations(t)
}

func TestPostMessageMembershipCheckFails(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	router := setupConversationRouter(service)

	service.On("IsParticipant", mock.Anything, "c1", "u1").Return(false, fmt.Errorf("%w: timeout", chat.ErrStorage)).Once()

	rec := serve(router, http.MethodPost, "/conversations/c1/messages", `{"content":"hey"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMarkRead(t *testing.T) {
	service := new(mocks.ChatServiceMock)
	router := setupConversationRouter(service)

	service.On("MarkConversationRead", mock.Anything, "c1", "u1").Return(nil).Once()
	service.On("MarkConversationRead", mock.Anything, "c2", "u1").Return(chat.ErrNotParticipant).Once()

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodPost, "/conversations/c1/read", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodPost, "/conversations/c2/read", "").Code)
	service.AssertExpectations(t)
}
