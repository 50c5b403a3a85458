package agents

import (
	"context"
	"sync"
)

// Repository reads agents and integrations.
type Repository interface {
	IntegrationByKey(ctx context.Context, provider, correlationKey string) (*Integration, error)
	AgentByID(ctx context.Context, id string) (*Agent, error)
}

type integrationKey struct {
	provider string
	key      string
}

// InMemoryRepository is a seeded, read-mostly repository for dev mode and tests.
type InMemoryRepository struct {
	mu           sync.RWMutex
	agents       map[string]*Agent
	integrations map[integrationKey]*Integration
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		agents:       make(map[string]*Agent),
		integrations: make(map[integrationKey]*Integration),
	}
}

// PutAgent stores or replaces an agent.
func (r *InMemoryRepository) PutAgent(agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = &agent
}

// PutIntegration stores or replaces an integration.
func (r *InMemoryRepository) PutIntegration(integration Integration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrations[integrationKey{provider: integration.Provider, key: integration.CorrelationKey}] = &integration
}

// IntegrationByKey finds the integration for a provider correlation key.
func (r *InMemoryRepository) IntegrationByKey(ctx context.Context, provider, correlationKey string) (*Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	integration, ok := r.integrations[integrationKey{provider: provider, key: correlationKey}]
	if !ok {
		return nil, ErrIntegrationNotFound
	}
	clone := *integration
	return &clone, nil
}

// AgentByID finds an agent.
func (r *InMemoryRepository) AgentByID(ctx context.Context, id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	clone := *agent
	return &clone, nil
}
