// Package conversation resolves inbound WhatsApp messages to leads and
// conversations, decides whether the agent answers, produces the agent's
// reply with the selected model provider, and dispatches it back out.
package conversation

import "time"

// Mode says who answers a conversation.
type Mode string

const (
	ModeAgent Mode = "agent"
	ModeHuman Mode = "human"
)

// Sender identifies the author of a message.
type Sender string

const (
	SenderHuman  Sender = "human"
	SenderAgent  Sender = "agent"
	SenderMember Sender = "member"
)

// Conversation is the thread between one lead and one agent.
type Conversation struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	AgentID   string    `json:"agent_id"`
	OrgID     string    `json:"org_id"`
	Mode      Mode      `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one persisted turn. Messages are append-only.
type Message struct {
	ID                string         `json:"id"`
	ConversationID    string         `json:"conversation_id"`
	Sender            Sender         `json:"sender"`
	Content           string         `json:"content"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	SentAt            int64          `json:"sent_at"`
}

// ShouldAutoRespond reports whether the agent answers this conversation.
// Mode is only ever changed by an operator, never by the pipeline.
func ShouldAutoRespond(conv *Conversation) bool {
	return conv != nil && conv.Mode == ModeAgent
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
