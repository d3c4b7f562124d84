package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/samber/lo"

	"consult-chat/internal/models"
	"consult-chat/internal/repositories"
)

// memStore is an in-memory stand-in for the relational store. It enforces the
// same uniqueness keys as the schema so concurrent callers race realistically.
type memStore struct {
	mu       sync.Mutex
	clock    time.Time
	seq      int
	profiles map[string]models.Profile
	convs    map[string]models.Conversation
	members  map[string]map[string]models.Participant
	msgs     []models.Message

	failProfiles bool
	failLatest   bool
	failFind     bool
}

func newMemStore(profiles ...models.Profile) *memStore {
	s := &memStore{
		clock:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		profiles: map[string]models.Profile{},
		convs:    map[string]models.Conversation{},
		members:  map[string]map[string]models.Participant{},
	}
	for _, p := range profiles {
		s.profiles[p.ID] = p
	}
	return s
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%04d", prefix, s.seq)
}

// seedDirect inserts a direct conversation without a uniqueness key, as rows
// created before the key existed look.
func (s *memStore) seedDirect(a, b string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID("legacy")
	s.convs[id] = models.Conversation{ID: id, Kind: models.KindDirect, CreatedAt: s.tick()}
	s.members[id] = map[string]models.Participant{}
	for _, u := range []string{a, b} {
		s.members[id][u] = models.Participant{ConversationID: id, UserID: u, JoinedAt: s.clock}
	}
	return id
}

func (s *memStore) conversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

func (s *memStore) memberIDs(conversationID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.members[conversationID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConversationRepository

func (s *memStore) FindDirect(ctx context.Context, userA, userB string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFind {
		return models.Conversation{}, fmt.Errorf("connection reset")
	}
	var matches []models.Conversation
	for id, conv := range s.convs {
		if conv.Kind != models.KindDirect {
			continue
		}
		_, hasA := s.members[id][userA]
		_, hasB := s.members[id][userB]
		if hasA && hasB {
			matches = append(matches, conv)
		}
	}
	if len(matches) == 0 {
		return models.Conversation{}, repositories.ErrConversationNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	return matches[0], nil
}

func (s *memStore) FindCohort(ctx context.Context, kind models.ConversationKind) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.convs {
		if conv.Kind == kind {
			return conv, nil
		}
	}
	return models.Conversation{}, repositories.ErrConversationNotFound
}

func (s *memStore) CreateWithParticipants(ctx context.Context, conv models.Conversation, memberIDs []string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.convs {
		if conv.Kind == models.KindDirect && conv.DirectKey != nil && existing.DirectKey != nil && *existing.DirectKey == *conv.DirectKey {
			return models.Conversation{}, repositories.ErrDuplicate
		}
		if conv.Kind.IsCohort() && existing.Kind == conv.Kind {
			return models.Conversation{}, repositories.ErrDuplicate
		}
	}
	for _, id := range memberIDs {
		if _, ok := s.profiles[id]; !ok {
			return models.Conversation{}, repositories.ErrProfileNotFound
		}
	}
	conv.ID = s.nextID("conv")
	conv.CreatedAt = s.tick()
	s.convs[conv.ID] = conv
	s.members[conv.ID] = map[string]models.Participant{}
	for _, id := range memberIDs {
		s.members[conv.ID][id] = models.Participant{ConversationID: conv.ID, UserID: id, JoinedAt: conv.CreatedAt}
	}
	return conv, nil
}

func (s *memStore) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return models.Conversation{}, repositories.ErrConversationNotFound
	}
	return conv, nil
}

func (s *memStore) GetConversations(ctx context.Context, conversationIDs []string) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Conversation{}
	for _, id := range conversationIDs {
		if conv, ok := s.convs[id]; ok {
			out = append(out, conv)
		}
	}
	return out, nil
}

// ParticipantRepository

func (s *memStore) AddParticipant(ctx context.Context, conversationID string, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[conversationID]; !ok {
		return repositories.ErrConversationNotFound
	}
	if _, ok := s.profiles[userID]; !ok {
		return repositories.ErrProfileNotFound
	}
	if _, ok := s.members[conversationID][userID]; !ok {
		s.members[conversationID][userID] = models.Participant{ConversationID: conversationID, UserID: userID, JoinedAt: s.tick()}
	}
	return nil
}

func (s *memStore) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.members[conversationID][userID]
	return ok, nil
}

func (s *memStore) ListForUser(ctx context.Context, userID string) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Participant
	for _, set := range s.members {
		if p, ok := set[userID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) ListForConversations(ctx context.Context, conversationIDs []string) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Participant
	for _, id := range conversationIDs {
		for _, p := range s.members[id] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) MarkRead(ctx context.Context, conversationID string, userID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.members[conversationID][userID]
	if !ok {
		return time.Time{}, repositories.ErrNotParticipant
	}
	at := s.tick()
	p.LastReadAt = &at
	s.members[conversationID][userID] = p
	return at, nil
}

// MessageRepository

func (s *memStore) CreateMessage(ctx context.Context, conversationID string, senderID string, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[conversationID]
	if !ok {
		return models.Message{}, repositories.ErrConversationNotFound
	}
	if _, ok := s.profiles[senderID]; !ok {
		return models.Message{}, repositories.ErrProfileNotFound
	}
	msg := models.Message{
		ID:             s.nextID("msg"),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.tick(),
		ReadBy:         pq.StringArray{},
	}
	s.msgs = append(s.msgs, msg)
	created := msg.CreatedAt
	conv.LastActivityAt = &created
	s.convs[conversationID] = conv
	return msg, nil
}

func (s *memStore) withSender(msg models.Message) models.Message {
	if p, ok := s.profiles[msg.SenderID]; ok {
		msg.Sender = p.Sender()
	}
	return msg
}

func (s *memStore) ListMessages(ctx context.Context, conversationID string, limit int, offset int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newestFirst []models.Message
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if s.msgs[i].ConversationID == conversationID {
			newestFirst = append(newestFirst, s.withSender(s.msgs[i]))
		}
	}
	if offset >= len(newestFirst) {
		return []models.Message{}, nil
	}
	end := offset + limit
	if end > len(newestFirst) {
		end = len(newestFirst)
	}
	return newestFirst[offset:end], nil
}

func (s *memStore) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m.ID == messageID {
			return s.withSender(m), nil
		}
	}
	return models.Message{}, repositories.ErrMessageNotFound
}

func (s *memStore) LatestMessages(ctx context.Context, conversationIDs []string) (map[string]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLatest {
		return nil, fmt.Errorf("statement timeout")
	}
	out := map[string]models.Message{}
	for _, m := range s.msgs {
		out[m.ConversationID] = s.withSender(m)
	}
	for id := range out {
		if !lo.Contains(conversationIDs, id) {
			delete(out, id)
		}
	}
	return out, nil
}

func (s *memStore) CountUnread(ctx context.Context, userID string, conversationIDs []string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{}
	for _, m := range s.msgs {
		if !lo.Contains(conversationIDs, m.ConversationID) || m.SenderID == userID {
			continue
		}
		p, ok := s.members[m.ConversationID][userID]
		if !ok {
			continue
		}
		if p.LastReadAt == nil || m.CreatedAt.After(*p.LastReadAt) {
			out[m.ConversationID]++
		}
	}
	return out, nil
}

// ProfileDirectory

func (s *memStore) Get(ctx context.Context, userID string) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failProfiles {
		return models.Profile{}, fmt.Errorf("profiles unavailable")
	}
	p, ok := s.profiles[userID]
	if !ok {
		return models.Profile{}, repositories.ErrProfileNotFound
	}
	return p, nil
}

func (s *memStore) Bulk(ctx context.Context, userIDs []string) (map[string]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failProfiles {
		return nil, fmt.Errorf("profiles unavailable")
	}
	out := map[string]models.Profile{}
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

var (
	_ repositories.ConversationRepository = (*memStore)(nil)
	_ repositories.ParticipantRepository  = (*memStore)(nil)
	_ repositories.MessageRepository      = (*memStore)(nil)
	_ ProfileDirectory                    = (*memStore)(nil)
)
