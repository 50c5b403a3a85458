package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wolfman30/leadflow/internal/store"
)

var integrationsTable = store.Table{
	Name:    "integrations",
	Columns: []string{"id", "agent_id", "org_id", "provider", "correlation_key", "metadata"},
}

var agentsTable = store.Table{
	Name: "agents",
	Columns: []string{"id", "org_id", "name", "description", "instructions", "greeting", "tone",
		"working_hours", "voice_policy", "model_provider", "language", "active"},
}

// PostgresRepository reads agents and integrations from Postgres.
type PostgresRepository struct {
	db store.Querier
}

// NewPostgresRepository wires the repository to a pgx pool.
func NewPostgresRepository(db store.Querier) *PostgresRepository {
	if db == nil {
		panic("agents: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

// IntegrationByKey finds the integration for a provider correlation key.
func (r *PostgresRepository) IntegrationByKey(ctx context.Context, provider, correlationKey string) (*Integration, error) {
	row := store.FirstByFilter(ctx, r.db, integrationsTable, store.Filter{"provider": provider, "correlation_key": correlationKey})
	var (
		integration Integration
		raw         []byte
	)
	if err := row.Scan(&integration.ID, &integration.AgentID, &integration.OrgID, &integration.Provider, &integration.CorrelationKey, &raw); err != nil {
		if errors.Is(store.Translate(err), store.ErrNotFound) {
			return nil, ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("agents: select integration: %w", err)
	}
	metadata, err := decodeMetadata(raw)
	if err != nil {
		return nil, fmt.Errorf("agents: integration %s metadata: %w", integration.ID, err)
	}
	integration.Metadata = metadata
	return &integration, nil
}

// AgentByID finds an agent by id.
func (r *PostgresRepository) AgentByID(ctx context.Context, id string) (*Agent, error) {
	var (
		agent  Agent
		policy string
	)
	err := store.GetByID(ctx, r.db, agentsTable, id).Scan(
		&agent.ID,
		&agent.OrgID,
		&agent.Name,
		&agent.Description,
		&agent.Instructions,
		&agent.Greeting,
		&agent.Tone,
		&agent.WorkingHours,
		&policy,
		&agent.ModelProvider,
		&agent.Language,
		&agent.Active,
	)
	if err != nil {
		if errors.Is(store.Translate(err), store.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("agents: select agent: %w", err)
	}
	agent.VoicePolicy = VoicePolicy(policy)
	return &agent, nil
}

// decodeMetadata flattens the jsonb credentials object into strings.
// Numeric ids sent by dashboards are kept in their JSON text form.
func decodeMetadata(raw []byte) (map[string]string, error) {
	out := make(map[string]string)
	if len(raw) == 0 {
		return out, nil
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	for k, v := range values {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		if string(v) == "null" {
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}
