package conversation

import (
	"context"
	"regexp"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresEnsureConversationConflictFetchesExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	created := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversations (agent_id, created_at, id, lead_id, mode, org_id) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (lead_id, agent_id) DO NOTHING")).
		WithArgs("agent-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "lead-1", "agent", "org-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, lead_id, agent_id, org_id, mode, created_at FROM conversations WHERE agent_id = $1 AND lead_id = $2 LIMIT 1")).
		WithArgs("agent-1", "lead-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "lead_id", "agent_id", "org_id", "mode", "created_at"}).
			AddRow("conv-1", "lead-1", "agent-1", "org-1", "human", created))

	store := NewPostgresStore(mock)
	conv, createdNow, err := store.EnsureConversation(context.Background(), "lead-1", "agent-1", "org-1")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if createdNow {
		t.Fatalf("expected existing conversation")
	}
	if conv.ID != "conv-1" || conv.Mode != ModeHuman {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

const insertMessageSQL = "INSERT INTO conversation_messages (content, conversation_id, id, metadata, provider_message_id, sender, sent_at) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (conversation_id, provider_message_id) DO NOTHING"

func TestPostgresAppendMessageDeduplicatesByProviderID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(insertMessageSQL)).
		WithArgs("hi", "conv-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "wamid.1", "human", int64(1700000000000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(insertMessageSQL)).
		WithArgs("hi", "conv-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "wamid.1", "human", int64(1700000000000)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewPostgresStore(mock)
	for i, want := range []bool{true, false} {
		msg := &Message{ConversationID: "conv-1", Sender: SenderHuman, Content: "hi", ProviderMessageID: "wamid.1", SentAt: 1700000000000}
		inserted, err := store.AppendMessage(context.Background(), msg)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if inserted != want {
			t.Fatalf("append %d: expected inserted=%v", i, want)
		}
		if msg.ID == "" {
			t.Fatalf("expected id to be assigned")
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresAppendMessageStoresNullProviderID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(insertMessageSQL)).
		WithArgs("reply", "conv-1", pgxmock.AnyArg(), []byte(`{"type":"text"}`), nil, "agent", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresStore(mock)
	msg := &Message{ConversationID: "conv-1", Sender: SenderAgent, Content: "reply", Metadata: map[string]any{"type": "text"}}
	if _, err := store.AppendMessage(context.Background(), msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.SentAt == 0 {
		t.Fatalf("expected sent_at to default to now")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRecentMessagesChronological(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	cols := []string{"id", "conversation_id", "sender", "content", "metadata", "provider_message_id", "sent_at"}
	wamid := "wamid.2"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, conversation_id, sender, content, metadata, provider_message_id, sent_at FROM conversation_messages WHERE conversation_id = $1 ORDER BY sent_at DESC LIMIT 2")).
		WithArgs("conv-1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("m2", "conv-1", "agent", "second", []byte(`{"type":"text"}`), (*string)(nil), int64(2000)).
			AddRow("m1", "conv-1", "human", "first", []byte(`{"kind":"text"}`), &wamid, int64(1000)))

	store := NewPostgresStore(mock)
	msgs, err := store.RecentMessages(context.Background(), "conv-1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("expected oldest first, got %+v", msgs)
	}
	if msgs[0].ProviderMessageID != "wamid.2" || msgs[1].ProviderMessageID != "" {
		t.Fatalf("unexpected provider ids: %+v", msgs)
	}
	if msgs[0].Metadata["kind"] != "text" {
		t.Fatalf("expected decoded metadata, got %+v", msgs[0].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresAnnotateMessageMergesMetadata(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	annotateSQL := regexp.QuoteMeta("UPDATE conversation_messages SET metadata = COALESCE(metadata, '{}'::jsonb) || $1::jsonb WHERE id = $2 AND conversation_id = $3")
	mock.ExpectExec(annotateSQL).
		WithArgs([]byte(`{"transcript":"hello"}`), "m1", "conv-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(annotateSQL).
		WithArgs(pgxmock.AnyArg(), "missing", "conv-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewPostgresStore(mock)
	if err := store.AnnotateMessage(context.Background(), "conv-1", "m1", map[string]any{MetadataTranscript: "hello"}); err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if err := store.AnnotateMessage(context.Background(), "conv-1", "missing", map[string]any{MetadataTranscript: "x"}); err == nil {
		t.Fatalf("expected not found for unknown message")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
