package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"consult-chat/internal/models"
)

// SubjectPrefix roots the per-conversation message subjects.
const SubjectPrefix = "chat.messages"

func subject(conversationID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, conversationID)
}

// NATSFeed publishes and consumes insert events on a JetStream stream.
type NATSFeed struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
	logger *slog.Logger
}

// NewNATSFeed connects and makes sure the stream exists.
func NewNATSFeed(ctx context.Context, url, stream string, logger *slog.Logger) (*NATSFeed, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url, nats.Name("consult-chat"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Inserted chat message ids",
		Subjects:    []string{SubjectPrefix + ".>"},
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}
	logger.Info("nats feed ready", "stream", stream)
	return &NATSFeed{nc: nc, js: js, stream: stream, logger: logger}, nil
}

// NotifyMessage publishes the insert event for a committed message. The message id
// doubles as the JetStream dedup id.
func (f *NATSFeed) NotifyMessage(ctx context.Context, msg models.Message) error {
	data, err := json.Marshal(Event{ID: msg.ID, ConversationID: msg.ConversationID})
	if err != nil {
		return err
	}
	if _, err := f.js.Publish(ctx, subject(msg.ConversationID), data, jetstream.WithMsgID(msg.ID)); err != nil {
		return fmt.Errorf("publish %s: %w", subject(msg.ConversationID), err)
	}
	return nil
}

// Run consumes new events from an ephemeral consumer until ctx is done.
func (f *NATSFeed) Run(ctx context.Context, handle func(context.Context, Event)) error {
	cons, err := f.js.CreateOrUpdateConsumer(ctx, f.stream, jetstream.ConsumerConfig{
		FilterSubject: SubjectPrefix + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	cc, err := cons.Consume(func(m jetstream.Msg) {
		ev, err := decodeEvent(m.Data())
		if err != nil {
			f.logger.Warn("nats feed message ignored", "subject", m.Subject(), "error", err)
			_ = m.Term()
			return
		}
		handle(ctx, ev)
		if err := m.Ack(); err != nil {
			f.logger.Debug("nats ack failed", "message_id", ev.ID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	defer cc.Stop()

	<-ctx.Done()
	return nil
}

// Close drains the connection.
func (f *NATSFeed) Close() error {
	if f.nc == nil {
		return nil
	}
	return f.nc.Drain()
}
