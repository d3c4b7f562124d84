package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"consult-chat/internal/models"
	"consult-chat/internal/observability"
)

// Event is the raw insert notification: just enough to locate the new row.
type Event struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
}

// Fetcher loads the enriched message for an event.
type Fetcher interface {
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
}

// Source streams insert events in commit order until ctx is done.
type Source interface {
	Run(ctx context.Context, handle func(context.Context, Event)) error
}

const (
	defaultFetchTimeout = 5 * time.Second
	defaultRecentIDs    = 4096
)

// Broker fans change-feed events out to per-conversation subscriptions.
type Broker struct {
	fetcher      Fetcher
	logger       *slog.Logger
	fetchTimeout time.Duration

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}

	seen *recentIDs
}

// NewBroker creates a Broker.
func NewBroker(fetcher Fetcher, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		fetcher:      fetcher,
		logger:       logger,
		fetchTimeout: defaultFetchTimeout,
		subs:         make(map[string]map[*Subscription]struct{}),
		seen:         newRecentIDs(defaultRecentIDs),
	}
}

// Subscription is one registered callback. It stops receiving once Unsubscribe returns.
type Subscription struct {
	broker         *Broker
	conversationID string
	onMessage      func(models.Message)
	closed         atomic.Bool
	once           sync.Once
}

// Unsubscribe detaches the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.broker.remove(s)
	})
}

// Subscribe registers onMessage for conversationID and returns its unsubscribe func.
func (b *Broker) Subscribe(conversationID string, onMessage func(models.Message)) func() {
	return b.SubscribeHandle(conversationID, onMessage).Unsubscribe
}

// SubscribeHandle is Subscribe returning the handle itself.
func (b *Broker) SubscribeHandle(conversationID string, onMessage func(models.Message)) *Subscription {
	sub := &Subscription{broker: b, conversationID: conversationID, onMessage: onMessage}

	b.mu.Lock()
	set, ok := b.subs[conversationID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[conversationID] = set
	}
	set[sub] = struct{}{}
	b.mu.Unlock()

	observability.AddFeedSubscriptions(1)
	return sub
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	if set, ok := b.subs[sub.conversationID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, sub.conversationID)
		}
	}
	b.mu.Unlock()

	observability.AddFeedSubscriptions(-1)
}

func (b *Broker) snapshot(conversationID string) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	set := b.subs[conversationID]
	out := make([]*Subscription, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}

// SubscriberCount returns the number of live subscriptions for a conversation.
func (b *Broker) SubscriberCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}

// Stats reports active subscriptions per conversation.
func (b *Broker) Stats() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int, len(b.subs))
	for id, set := range b.subs {
		out[id] = len(set)
	}
	return out
}

// Dispatch enriches one event and delivers it to every active subscriber of its
// conversation. Redelivered ids, fetch failures and missing rows are dropped.
func (b *Broker) Dispatch(ctx context.Context, ev Event) {
	observability.IncFeedEvent(observability.FeedReceived)
	if ev.ID == "" || ev.ConversationID == "" {
		observability.IncFeedEvent(observability.FeedDropped)
		return
	}
	subs := b.snapshot(ev.ConversationID)
	if len(subs) == 0 {
		return
	}
	if !b.seen.add(ev.ID) {
		observability.IncFeedEvent(observability.FeedDuplicate)
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, b.fetchTimeout)
	msg, err := b.fetcher.GetMessage(fetchCtx, ev.ID)
	cancel()
	if err != nil {
		observability.IncFeedEvent(observability.FeedDropped)
		b.logger.Debug("feed event dropped", "message_id", ev.ID, "conversation_id", ev.ConversationID, "error", err)
		return
	}

	for _, sub := range subs {
		if sub.closed.Load() {
			continue
		}
		sub.onMessage(msg)
		observability.IncFeedEvent(observability.FeedDelivered)
	}
}

// Run pumps events from src into Dispatch until ctx is done or src fails.
func (b *Broker) Run(ctx context.Context, src Source) error {
	return src.Run(ctx, b.Dispatch)
}
