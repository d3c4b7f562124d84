package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"consult-chat/internal/models"
)

// ChatServiceMock mocks the chat service as seen by the HTTP and websocket layers.
type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) FindOrCreateDirectConversation(ctx context.Context, userA, userB string) (string, error) {
	args := m.Called(ctx, userA, userB)
	return args.String(0), args.Error(1)
}

func (m *ChatServiceMock) GetOrCreateGroupChannel(ctx context.Context, tag string, requesterID string) (string, error) {
	args := m.Called(ctx, tag, requesterID)
	return args.String(0), args.Error(1)
}

func (m *ChatServiceMock) SendMessage(ctx context.Context, conversationID, senderID, content string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatServiceMock) GetMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ChatServiceMock) ListConversationsForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	args := m.Called(ctx, conversationID, userID)
	return args.Error(0)
}

func (m *ChatServiceMock) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatServiceMock) Subscribe(conversationID string, onMessage func(models.Message)) func() {
	args := m.Called(conversationID, onMessage)
	if fn, ok := args.Get(0).(func()); ok {
		return fn
	}
	return func() {}
}
