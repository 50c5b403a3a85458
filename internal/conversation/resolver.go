package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/leadflow/internal/agents"
	"github.com/wolfman30/leadflow/internal/channels"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Resolution is everything the rest of the pipeline needs about one inbound turn.
type Resolution struct {
	Event        channels.InboundEvent
	Integration  *agents.Integration
	Agent        *agents.Agent
	Lead         *leads.Lead
	Conversation *Conversation
	Message      *Message

	LeadCreated         bool
	ConversationCreated bool
	// Duplicate is set when the provider redelivered a message already stored.
	Duplicate bool
}

// Resolver maps an inbound event to its integration, agent, lead and
// conversation, then stores the inbound message.
type Resolver struct {
	agents        agents.Repository
	leads         leads.Repository
	store         Store
	defaultStatus string
	logger        *logging.Logger
}

// NewResolver wires a resolver. defaultStatus is used when the organization
// has no pipeline columns.
func NewResolver(agentRepo agents.Repository, leadRepo leads.Repository, store Store, defaultStatus string, logger *logging.Logger) *Resolver {
	if agentRepo == nil || leadRepo == nil || store == nil {
		panic("conversation: resolver requires agent, lead and conversation stores")
	}
	if defaultStatus == "" {
		defaultStatus = "new"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{agents: agentRepo, leads: leadRepo, store: store, defaultStatus: defaultStatus, logger: logger}
}

// Resolve is idempotent: concurrent deliveries of the same event converge on
// one lead, one conversation and one stored message.
func (r *Resolver) Resolve(ctx context.Context, evt channels.InboundEvent) (*Resolution, error) {
	integration, err := r.agents.IntegrationByKey(ctx, string(evt.Provider), evt.CorrelationKey)
	if err != nil {
		if errors.Is(err, agents.ErrIntegrationNotFound) {
			return nil, fmt.Errorf("%w: %s %s", ErrIntegrationNotFound, evt.Provider, evt.CorrelationKey)
		}
		return nil, fmt.Errorf("conversation: lookup integration: %w", err)
	}

	agent, err := r.agents.AgentByID(ctx, integration.AgentID)
	if err != nil {
		if errors.Is(err, agents.ErrAgentNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAgentUnavailable, integration.AgentID)
		}
		return nil, fmt.Errorf("conversation: lookup agent: %w", err)
	}
	if !agent.Active {
		return nil, fmt.Errorf("%w: %s inactive", ErrAgentUnavailable, agent.ID)
	}

	status, err := r.leads.DefaultStatus(ctx, integration.OrgID)
	if err != nil {
		return nil, fmt.Errorf("conversation: default lead status: %w", err)
	}
	if status == "" {
		status = r.defaultStatus
	}
	lead, leadCreated, err := r.leads.Ensure(ctx, leads.EnsureRequest{
		OrgID:  integration.OrgID,
		Phone:  channels.DigitsOnly(evt.CustomerID),
		Name:   strings.TrimSpace(evt.CustomerName),
		Source: string(evt.Provider),
		Status: status,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: ensure lead: %w", err)
	}

	conv, convCreated, err := r.store.EnsureConversation(ctx, lead.ID, agent.ID, integration.OrgID)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ConversationID:    conv.ID,
		Sender:            SenderHuman,
		Content:           evt.Text,
		Metadata:          inboundMetadata(evt),
		ProviderMessageID: evt.MessageID,
		SentAt:            evt.Timestamp,
	}
	inserted, err := r.store.AppendMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	res := &Resolution{
		Event:               evt,
		Integration:         integration,
		Agent:               agent,
		Lead:                lead,
		Conversation:        conv,
		Message:             msg,
		LeadCreated:         leadCreated,
		ConversationCreated: convCreated,
		Duplicate:           !inserted,
	}
	if res.Duplicate {
		r.logger.Info("duplicate inbound message ignored",
			"provider", evt.Provider,
			"conversation_id", conv.ID,
			"provider_message_id", evt.MessageID,
		)
	}
	return res, nil
}

func inboundMetadata(evt channels.InboundEvent) map[string]any {
	md := map[string]any{
		"kind":     string(evt.Kind),
		"provider": string(evt.Provider),
	}
	if evt.CustomerName != "" {
		md["customer_name"] = evt.CustomerName
	}
	if evt.Media != nil {
		md["media"] = evt.Media
	}
	if len(evt.Raw) > 0 {
		md["raw"] = evt.Raw
	}
	return md
}
