package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// PostgresSource listens on the NOTIFY channel fed by the messages insert trigger.
type PostgresSource struct {
	dsn          string
	channel      string
	logger       *slog.Logger
	pingInterval time.Duration
}

// NewPostgresSource builds a source for channel on the database at dsn.
func NewPostgresSource(dsn, channel string, logger *slog.Logger) *PostgresSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSource{dsn: dsn, channel: channel, logger: logger, pingInterval: 90 * time.Second}
}

// Run blocks until ctx is done. The listener reconnects on its own; notifications
// sent while disconnected are lost.
func (s *PostgresSource) Run(ctx context.Context, handle func(context.Context, Event)) error {
	listener := pq.NewListener(s.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			s.logger.Info("feed listener connected", "channel", s.channel)
		case pq.ListenerEventDisconnected:
			s.logger.Warn("feed listener disconnected", "channel", s.channel, "error", err)
		case pq.ListenerEventReconnected:
			s.logger.Info("feed listener reconnected", "channel", s.channel)
		case pq.ListenerEventConnectionAttemptFailed:
			s.logger.Warn("feed listener connect failed", "channel", s.channel, "error", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(s.channel); err != nil {
		return fmt.Errorf("listen %s: %w", s.channel, err)
	}
	return s.pump(ctx, listener.Notify, listener.Ping, handle)
}

func (s *PostgresSource) pump(ctx context.Context, notify <-chan *pq.Notification, ping func() error, handle func(context.Context, Event)) error {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notify:
			if !ok {
				return fmt.Errorf("feed listener closed")
			}
			if n == nil {
				continue
			}
			ev, err := decodeEvent([]byte(n.Extra))
			if err != nil {
				s.logger.Warn("feed notification ignored", "channel", n.Channel, "error", err)
				continue
			}
			handle(ctx, ev)
		case <-ticker.C:
			if err := ping(); err != nil {
				s.logger.Warn("feed listener ping failed", "error", err)
			}
		}
	}
}

func decodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, err
	}
	if ev.ID == "" || ev.ConversationID == "" {
		return Event{}, fmt.Errorf("incomplete event %q", raw)
	}
	return ev, nil
}
