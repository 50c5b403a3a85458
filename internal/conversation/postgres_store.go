package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/leadflow/internal/store"
)

var conversationsTable = store.Table{
	Name:    "conversations",
	Columns: []string{"id", "lead_id", "agent_id", "org_id", "mode", "created_at"},
}

var messagesTable = store.Table{
	Name:    "conversation_messages",
	Columns: []string{"id", "conversation_id", "sender", "content", "metadata", "provider_message_id", "sent_at"},
}

// PostgresStore persists conversations and messages in Postgres.
type PostgresStore struct {
	db store.Querier
}

// NewPostgresStore creates a store backed by a pgx pool.
func NewPostgresStore(db store.Querier) *PostgresStore {
	if db == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureConversation(ctx context.Context, leadID, agentID, orgID string) (*Conversation, bool, error) {
	inserted, err := store.Upsert(ctx, s.db, conversationsTable.Name, store.Record{
		"id":         uuid.New().String(),
		"lead_id":    leadID,
		"agent_id":   agentID,
		"org_id":     orgID,
		"mode":       string(ModeAgent),
		"created_at": time.Now().UTC(),
	}, "lead_id", "agent_id")
	if err != nil {
		return nil, false, fmt.Errorf("conversation: insert conversation: %w", err)
	}
	var (
		conv Conversation
		mode string
	)
	row := store.FirstByFilter(ctx, s.db, conversationsTable, store.Filter{"lead_id": leadID, "agent_id": agentID})
	if err := row.Scan(&conv.ID, &conv.LeadID, &conv.AgentID, &conv.OrgID, &mode, &conv.CreatedAt); err != nil {
		return nil, false, fmt.Errorf("conversation: select conversation: %w", store.Translate(err))
	}
	conv.Mode = Mode(mode)
	return &conv, inserted, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg *Message) (bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.SentAt == 0 {
		msg.SentAt = nowMillis()
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return false, fmt.Errorf("conversation: marshal metadata: %w", err)
	}
	// NULL provider ids never conflict, so outbound messages always insert.
	var providerID any
	if msg.ProviderMessageID != "" {
		providerID = msg.ProviderMessageID
	}
	inserted, err := store.Upsert(ctx, s.db, messagesTable.Name, store.Record{
		"id":                  msg.ID,
		"conversation_id":     msg.ConversationID,
		"sender":              string(msg.Sender),
		"content":             msg.Content,
		"metadata":            metadata,
		"provider_message_id": providerID,
		"sent_at":             msg.SentAt,
	}, "conversation_id", "provider_message_id")
	if err != nil {
		return false, fmt.Errorf("conversation: insert message: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) AnnotateMessage(ctx context.Context, conversationID, messageID string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("conversation: marshal annotation: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE conversation_messages SET metadata = COALESCE(metadata, '{}'::jsonb) || $1::jsonb WHERE id = $2 AND conversation_id = $3`,
		patch, messageID, conversationID)
	if err != nil {
		return fmt.Errorf("conversation: annotate message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	rows, err := store.GetByFilter(ctx, s.db, messagesTable, store.Filter{"conversation_id": conversationID},
		store.OrderBy("sent_at", true), store.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("conversation: select messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg        Message
			sender     string
			metadata   []byte
			providerID *string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &sender, &msg.Content, &metadata, &providerID, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		msg.Sender = Sender(sender)
		if providerID != nil {
			msg.ProviderMessageID = *providerID
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("conversation: decode metadata for %s: %w", msg.ID, err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate messages: %w", err)
	}
	// newest-first from the query; callers want chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
