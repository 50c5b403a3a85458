package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/leadflow/internal/store"
)

// Store persists conversations and their messages.
type Store interface {
	// EnsureConversation returns the conversation for (lead, agent), creating
	// it in agent mode when absent. The bool reports whether it was created.
	EnsureConversation(ctx context.Context, leadID, agentID, orgID string) (*Conversation, bool, error)
	// AppendMessage stores msg, assigning ID and SentAt when empty. It returns
	// false when a message with the same provider id already exists in the
	// conversation.
	AppendMessage(ctx context.Context, msg *Message) (bool, error)
	// AnnotateMessage merges fields into a message's metadata. Content is
	// never changed.
	AnnotateMessage(ctx context.Context, conversationID, messageID string, fields map[string]any) error
	// RecentMessages returns up to limit newest messages, oldest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
}

type convKey struct {
	leadID  string
	agentID string
}

type providerKey struct {
	conversationID    string
	providerMessageID string
}

// MemoryStore is an in-memory Store with the same uniqueness guarantees as
// the database schema.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	byPair        map[convKey]string
	messages      map[string][]Message
	providerIDs   map[providerKey]struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		byPair:        make(map[convKey]string),
		messages:      make(map[string][]Message),
		providerIDs:   make(map[providerKey]struct{}),
	}
}

func (s *MemoryStore) EnsureConversation(ctx context.Context, leadID, agentID, orgID string) (*Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := convKey{leadID: leadID, agentID: agentID}
	if id, ok := s.byPair[key]; ok {
		clone := *s.conversations[id]
		return &clone, false, nil
	}
	conv := &Conversation{
		ID:        uuid.New().String(),
		LeadID:    leadID,
		AgentID:   agentID,
		OrgID:     orgID,
		Mode:      ModeAgent,
		CreatedAt: time.Now().UTC(),
	}
	s.conversations[conv.ID] = conv
	s.byPair[key] = conv.ID
	clone := *conv
	return &clone, true, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg *Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ProviderMessageID != "" {
		key := providerKey{conversationID: msg.ConversationID, providerMessageID: msg.ProviderMessageID}
		if _, dup := s.providerIDs[key]; dup {
			return false, nil
		}
		s.providerIDs[key] = struct{}{}
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.SentAt == 0 {
		msg.SentAt = nowMillis()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return true, nil
}

func (s *MemoryStore) AnnotateMessage(ctx context.Context, conversationID, messageID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		md := make(map[string]any, len(msgs[i].Metadata)+len(fields))
		for k, v := range msgs[i].Metadata {
			md[k] = v
		}
		for k, v := range fields {
			md[k] = v
		}
		msgs[i].Metadata = md
		return nil
	}
	return store.ErrNotFound
}

func (s *MemoryStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append([]Message(nil), s.messages[conversationID]...)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].SentAt < msgs[j].SentAt })
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// SetMode changes a conversation's mode, as an operator takeover would.
func (s *MemoryStore) SetMode(conversationID string, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[conversationID]; ok {
		conv.Mode = mode
	}
}

// Conversations returns a snapshot of every conversation.
func (s *MemoryStore) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, *c)
	}
	return out
}

// Messages returns a snapshot of a conversation's messages in insert order.
func (s *MemoryStore) Messages(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages[conversationID]...)
}
