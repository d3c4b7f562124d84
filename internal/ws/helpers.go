package ws

import (
	"errors"
	"net"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func newConnID() string {
	return uuid.NewString()
}

// isUnexpectedClose reports read errors that are worth an error event: anything
// other than a clean close from either side.
func isUnexpectedClose(err error) bool {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return false
	}
	return websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
