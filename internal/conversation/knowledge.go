package conversation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/leadflow/internal/store"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// KnowledgeChunk is one embedded passage of an agent's knowledge base.
// Embeddings are only comparable within one provider family.
type KnowledgeChunk struct {
	ID        string
	AgentID   string
	Provider  string
	Content   string
	Embedding []float32
}

// KnowledgeStore persists knowledge chunks.
type KnowledgeStore interface {
	AddChunks(ctx context.Context, chunks []KnowledgeChunk) error
	Chunks(ctx context.Context, agentID, provider string) ([]KnowledgeChunk, error)
}

// MemoryKnowledgeStore keeps chunks in memory keyed by agent and provider.
type MemoryKnowledgeStore struct {
	mu     sync.RWMutex
	chunks map[string][]KnowledgeChunk
}

func NewMemoryKnowledgeStore() *MemoryKnowledgeStore {
	return &MemoryKnowledgeStore{chunks: make(map[string][]KnowledgeChunk)}
}

func knowledgeKey(agentID, provider string) string {
	return agentID + "|" + provider
}

func (s *MemoryKnowledgeStore) AddChunks(ctx context.Context, chunks []KnowledgeChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		key := knowledgeKey(c.AgentID, c.Provider)
		s.chunks[key] = append(s.chunks[key], c)
	}
	return nil
}

func (s *MemoryKnowledgeStore) Chunks(ctx context.Context, agentID, provider string) ([]KnowledgeChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]KnowledgeChunk(nil), s.chunks[knowledgeKey(agentID, provider)]...), nil
}

var knowledgeTable = store.Table{
	Name:    "knowledge_chunks",
	Columns: []string{"id", "agent_id", "provider", "content", "embedding"},
}

// PostgresKnowledgeStore stores chunks with their embedding as real[].
type PostgresKnowledgeStore struct {
	db store.Querier
}

func NewPostgresKnowledgeStore(db store.Querier) *PostgresKnowledgeStore {
	if db == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresKnowledgeStore{db: db}
}

func (s *PostgresKnowledgeStore) AddChunks(ctx context.Context, chunks []KnowledgeChunk) error {
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if _, err := store.Upsert(ctx, s.db, knowledgeTable.Name, store.Record{
			"id":        c.ID,
			"agent_id":  c.AgentID,
			"provider":  c.Provider,
			"content":   c.Content,
			"embedding": c.Embedding,
		}, "id"); err != nil {
			return fmt.Errorf("conversation: insert knowledge chunk: %w", err)
		}
	}
	return nil
}

func (s *PostgresKnowledgeStore) Chunks(ctx context.Context, agentID, provider string) ([]KnowledgeChunk, error) {
	rows, err := store.GetByFilter(ctx, s.db, knowledgeTable, store.Filter{"agent_id": agentID, "provider": provider})
	if err != nil {
		return nil, fmt.Errorf("conversation: select knowledge: %w", err)
	}
	defer rows.Close()
	var out []KnowledgeChunk
	for rows.Next() {
		var c KnowledgeChunk
		if err := rows.Scan(&c.ID, &c.AgentID, &c.Provider, &c.Content, &c.Embedding); err != nil {
			return nil, fmt.Errorf("conversation: scan knowledge: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// KnowledgeBase embeds and retrieves agent knowledge with the caller's provider.
type KnowledgeBase struct {
	store  KnowledgeStore
	topK   int
	logger *logging.Logger
}

// NewKnowledgeBase creates a retriever over store. topK defaults to 3.
func NewKnowledgeBase(s KnowledgeStore, topK int, logger *logging.Logger) *KnowledgeBase {
	if s == nil {
		panic("conversation: knowledge store cannot be nil")
	}
	if topK <= 0 {
		topK = 3
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &KnowledgeBase{store: s, topK: topK, logger: logger}
}

// Ingest embeds documents with provider and stores them for the agent.
func (k *KnowledgeBase) Ingest(ctx context.Context, provider ModelProvider, agentID string, documents []string) (int, error) {
	var texts []string
	for _, d := range documents {
		if d = strings.TrimSpace(d); d != "" {
			texts = append(texts, d)
		}
	}
	if len(texts) == 0 {
		return 0, nil
	}
	vectors, err := provider.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	chunks := make([]KnowledgeChunk, len(texts))
	for i, t := range texts {
		chunks[i] = KnowledgeChunk{AgentID: agentID, Provider: provider.Name(), Content: t, Embedding: vectors[i]}
	}
	if err := k.store.AddChunks(ctx, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// Retrieve returns the topK passages most similar to query. Only chunks
// embedded by the same provider family are considered.
func (k *KnowledgeBase) Retrieve(ctx context.Context, provider ModelProvider, agentID, query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	chunks, err := k.store.Chunks(ctx, agentID, provider.Name())
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	vectors, err := provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("conversation: empty query embedding")
	}
	queryVec := vectors[0]

	type scored struct {
		score   float64
		content string
	}
	results := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, scored{score: cosineSimilarity(queryVec, c.Embedding), content: c.Content})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	limit := k.topK
	if len(results) < limit {
		limit = len(results)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = results[i].content
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
