package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/leadflow/pkg/logging"
)

const (
	defaultHistoryLimit  = 60
	defaultHistoryBudget = 6000
	summaryTTL           = 24 * time.Hour
	summaryKeyPrefix     = "leadflow:summary:"
	summaryInstruction   = "Summarize the conversation below between a customer and a support agent. Keep names, requests, decisions, dates, and any data the customer provided. Answer with the summary only."
)

// History is the context handed to the model for one turn.
type History struct {
	Summary  string
	Messages []ChatMessage
}

// HistoryBuilder loads persisted messages and keeps them within a token budget.
type HistoryBuilder struct {
	store  Store
	cache  *redis.Client
	limit  int
	budget int
	logger *logging.Logger
}

// NewHistoryBuilder creates a builder. cache may be nil, in which case
// summaries are recomputed on every turn.
func NewHistoryBuilder(store Store, cache *redis.Client, limit, budget int, logger *logging.Logger) *HistoryBuilder {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if budget <= 0 {
		budget = defaultHistoryBudget
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HistoryBuilder{store: store, cache: cache, limit: limit, budget: budget, logger: logger}
}

// Build returns the prior turns of conv, excluding currentMessageID.
func (h *HistoryBuilder) Build(ctx context.Context, provider ModelProvider, conversationID, currentMessageID string) (*History, error) {
	stored, err := h.store.RecentMessages(ctx, conversationID, h.limit+1)
	if err != nil {
		return nil, err
	}
	type turn struct {
		id  string
		msg ChatMessage
	}
	var turns []turn
	for _, m := range stored {
		if m.ID == currentMessageID {
			continue
		}
		text := historyText(m)
		if strings.TrimSpace(text) == "" {
			continue
		}
		turns = append(turns, turn{id: m.ID, msg: ChatMessage{Role: roleFor(m.Sender), Content: text}})
	}
	if len(turns) > h.limit {
		turns = turns[len(turns)-h.limit:]
	}

	messages := make([]ChatMessage, len(turns))
	for i, t := range turns {
		messages[i] = t.msg
	}
	if EstimateMessagesTokens(messages) <= h.budget {
		return &History{Messages: messages}, nil
	}

	split := splitForBudget(messages, h.budget/2)
	if split == 0 {
		return &History{Messages: messages}, nil
	}
	summary, err := h.summarize(ctx, provider, conversationID, turns[split-1].id, messages[:split])
	if err != nil {
		return nil, err
	}
	return &History{Summary: summary, Messages: messages[split:]}, nil
}

// RecordDerived stores text derived from a message's media on that message.
func (h *HistoryBuilder) RecordDerived(ctx context.Context, conversationID, messageID string, fields map[string]any) error {
	return h.store.AnnotateMessage(ctx, conversationID, messageID, fields)
}

func (h *HistoryBuilder) summarize(ctx context.Context, provider ModelProvider, conversationID, lastID string, older []ChatMessage) (string, error) {
	key := summaryKeyPrefix + conversationID + ":" + lastID
	if h.cache != nil {
		cached, err := h.cache.Get(ctx, key).Result()
		switch {
		case err == nil:
			return cached, nil
		case !errors.Is(err, redis.Nil):
			h.logger.Warn("history summary cache read failed", "conversation_id", conversationID, "error", err)
		}
	}

	var transcript strings.Builder
	for _, m := range older {
		speaker := "Customer"
		if m.Role == ChatRoleAssistant {
			speaker = "Agent"
		}
		fmt.Fprintf(&transcript, "%s: %s\n", speaker, m.Content)
	}
	resp, err := provider.Complete(ctx, CompletionRequest{
		System:   summaryInstruction,
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: transcript.String()}},
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp.Text)

	if h.cache != nil && summary != "" {
		if err := h.cache.Set(ctx, key, summary, summaryTTL).Err(); err != nil {
			h.logger.Warn("history summary cache write failed", "conversation_id", conversationID, "error", err)
		}
	}
	return summary, nil
}

// splitForBudget returns the index of the first message kept verbatim so
// that the kept tail fits within keep tokens. At least one message is kept.
func splitForBudget(messages []ChatMessage, keep int) int {
	total := 0
	for i := len(messages) - 1; i >= 0; i-- {
		total += EstimateTokens(messages[i].Content) + 4
		if total > keep {
			if i == len(messages)-1 {
				return i
			}
			return i + 1
		}
	}
	return 0
}

func roleFor(sender Sender) ChatRole {
	if sender == SenderHuman {
		return ChatRoleUser
	}
	return ChatRoleAssistant
}

// EstimateTokens gives a rough token count: about four ASCII characters per
// token, CJK characters closer to one each.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	chars, cjk := 0, 0
	for _, r := range text {
		chars++
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		}
	}
	return (chars-cjk)/4 + cjk*2/3 + 1
}

// EstimateMessagesTokens estimates total tokens for a slice of messages.
func EstimateMessagesTokens(messages []ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content) + 4
		for _, tc := range m.ToolCalls {
			total += EstimateTokens(tc.Name) + EstimateTokens(tc.Arguments)
		}
	}
	return total
}
