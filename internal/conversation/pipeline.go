package conversation

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/leadflow/internal/archive"
	"github.com/wolfman30/leadflow/internal/channels"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Pipeline runs one inbound turn: resolve, gate, respond, dispatch.
type Pipeline struct {
	resolver   *Resolver
	responder  Responder
	dispatcher *Dispatcher
	registry   *channels.Registry
	metrics    *metrics.PipelineMetrics
	logger     *logging.Logger
}

// NewPipeline wires the stages. m may be nil.
func NewPipeline(resolver *Resolver, responder Responder, dispatcher *Dispatcher, registry *channels.Registry, m *metrics.PipelineMetrics, logger *logging.Logger) *Pipeline {
	if resolver == nil || responder == nil || dispatcher == nil || registry == nil {
		panic("conversation: pipeline requires resolver, responder, dispatcher and registry")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		resolver:   resolver,
		responder:  responder,
		dispatcher: dispatcher,
		registry:   registry,
		metrics:    m,
		logger:     logger.Component("pipeline"),
	}
}

// Ingest resolves evt and stores the inbound message.
func (p *Pipeline) Ingest(ctx context.Context, evt channels.InboundEvent) (*Resolution, error) {
	ctx, span := tracer.Start(ctx, "conversation.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("leadflow.channel", string(evt.Provider)))

	start := time.Now()
	res, err := p.resolver.Resolve(ctx, evt)
	p.metrics.ObserveStage("resolve", time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		outcome := "error"
		if errors.Is(err, ErrIntegrationNotFound) || errors.Is(err, ErrAgentUnavailable) {
			outcome = "not_found"
		}
		p.metrics.ObserveInbound(string(evt.Provider), outcome)
		return nil, err
	}
	outcome := "accepted"
	if res.Duplicate {
		outcome = "duplicate"
	}
	p.metrics.ObserveInbound(string(evt.Provider), outcome)
	p.logger.Info("inbound message stored",
		"provider", evt.Provider,
		"org_id", res.Integration.OrgID,
		"agent_id", res.Agent.ID,
		"conversation_id", res.Conversation.ID,
		"phone_hash", archive.HashPhone(res.Lead.Phone),
		"kind", evt.Kind,
		"lead_created", res.LeadCreated,
		"duplicate", res.Duplicate,
	)
	return res, nil
}

// Reply answers a resolved turn when the conversation is in agent mode.
func (p *Pipeline) Reply(ctx context.Context, res *Resolution) error {
	if res == nil || res.Duplicate {
		return nil
	}
	log := p.logger.With("conversation_id", res.Conversation.ID, "org_id", res.Integration.OrgID)
	if !ShouldAutoRespond(res.Conversation) {
		log.Info("conversation handled by a human, not replying", "mode", res.Conversation.Mode)
		return nil
	}

	var fetcher channels.MediaFetcher
	if ch, err := p.registry.Get(res.Event.Provider); err == nil {
		fetcher = ch.Fetcher
	}

	start := time.Now()
	reply, err := p.responder.Respond(ctx, RespondRequest{
		Agent:        res.Agent,
		Conversation: res.Conversation,
		Lead:         res.Lead,
		Event:        res.Event,
		MessageID:    res.Message.ID,
		Credentials:  channels.Credentials(res.Integration.Metadata),
		Fetcher:      fetcher,
	})
	p.metrics.ObserveStage("respond", time.Since(start).Seconds())
	if err != nil {
		provider := res.Agent.ModelProvider
		var execErr *AgentExecutionError
		if errors.As(err, &execErr) {
			provider = execErr.Provider
			log = log.With("stage", execErr.Stage)
		}
		p.metrics.ObserveOrchestrator(provider, "error")
		log.Error("agent execution failed, no reply sent", "provider", provider, "error", err)
		return err
	}
	provider, _ := reply.ProviderMetadata["provider"].(string)
	p.metrics.ObserveOrchestrator(provider, "ok")

	start = time.Now()
	msg, err := p.dispatcher.Send(ctx, res.Integration, res.Conversation, res.Lead.Phone, reply)
	p.metrics.ObserveStage("dispatch", time.Since(start).Seconds())
	if err != nil {
		p.metrics.ObserveDispatch(res.Integration.Provider, "error")
		log.Error("reply dispatch failed", "channel", res.Integration.Provider, "error", err)
		return err
	}
	p.metrics.ObserveDispatch(res.Integration.Provider, "ok")
	log.Info("reply dispatched",
		"channel", res.Integration.Provider,
		"message_id", msg.ID,
		"type", reply.Type,
		"preview", archive.ScrubPII(truncate(reply.OutputText, 80)),
	)
	return nil
}

// Process runs Ingest and Reply back to back.
func (p *Pipeline) Process(ctx context.Context, evt channels.InboundEvent) error {
	res, err := p.Ingest(ctx, evt)
	if err != nil {
		return err
	}
	return p.Reply(ctx, res)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
