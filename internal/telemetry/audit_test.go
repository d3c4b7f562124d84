package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type publisherStub struct {
	mock.Mock
}

func (p *publisherStub) Publish(ctx context.Context, routingKey string, event any) error {
	args := p.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (p *publisherStub) Close() error { return nil }

func TestEmitBuildsEnvelope(t *testing.T) {
	pub := new(publisherStub)
	emitter := NewAuditEmitter(pub, "audit.chat", "consult-chat", "test", nil)

	var captured AuditEnvelope
	pub.On("Publish", mock.Anything, "audit.chat", mock.AnythingOfType("telemetry.AuditEnvelope")).
		Run(func(args mock.Arguments) { captured = args.Get(2).(AuditEnvelope) }).
		Return(nil).Once()

	ctx := WithRequestID(context.Background(), "req-1")
	emitter.Emit(ctx, AuditEvent{Type: EventConversationCreated, UserID: "u1", ConversationID: "c1", Kind: "direct"})

	pub.AssertExpectations(t)
	assert.Equal(t, EventConversationCreated, captured.EventType)
	assert.Equal(t, "req-1", captured.RequestID)
	require.NotNil(t, captured.UserID)
	assert.Equal(t, "u1", *captured.UserID)
	assert.Equal(t, "info", captured.Payload.Level)
	assert.Equal(t, "c1", captured.Payload.ConversationID)
}

func TestEmitSwallowsPublishError(t *testing.T) {
	pub := new(publisherStub)
	emitter := NewAuditEmitter(pub, "audit.chat", "consult-chat", "test", nil)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), AuditEvent{Type: EventPolicyRejected})
	})
	pub.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), AuditEvent{Type: EventChannelEnrolled})
	})
}
