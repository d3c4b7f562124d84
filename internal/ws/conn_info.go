package ws

import (
	"time"

	"consult-chat/internal/observability"
)

type ConnInfo struct {
	ConnID         string
	ConversationID string
	Identity       observability.Identity
	RequestID      string
	TraceID        string
	ConnectedAt    time.Time
}

func (i ConnInfo) lifecycle(event, reason string) observability.WSLifecycle {
	return observability.WSLifecycle{
		Event:          event,
		ConversationID: i.ConversationID,
		ConnID:         i.ConnID,
		Identity:       i.Identity,
		ConnectedAt:    i.ConnectedAt,
		Reason:         reason,
		RequestID:      i.RequestID,
		TraceID:        i.TraceID,
	}
}
