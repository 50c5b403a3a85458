package conversation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/leadflow/internal/agents"
	"github.com/wolfman30/leadflow/internal/channels"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/pkg/logging"
)

var tracer = otel.Tracer("leadflow.internal.conversation")

// ReplyType is the modality of an agent reply.
type ReplyType string

const (
	ReplyText  ReplyType = "text"
	ReplyAudio ReplyType = "audio"
)

// AgentReply is one assistant turn ready for dispatch. Output holds base64
// audio for audio replies and is empty otherwise.
type AgentReply struct {
	OutputText       string
	Output           string
	Type             ReplyType
	MimeType         string
	ProviderMetadata map[string]any
}

// RespondRequest carries one resolved turn into the orchestrator.
type RespondRequest struct {
	Agent        *agents.Agent
	Conversation *Conversation
	Lead         *leads.Lead
	Event        channels.InboundEvent
	// MessageID is the stored inbound message, excluded from history.
	MessageID   string
	Credentials channels.Credentials
	Fetcher     channels.MediaFetcher
}

// Responder produces agent replies.
type Responder interface {
	Respond(ctx context.Context, req RespondRequest) (*AgentReply, error)
}

// OrchestratorConfig wires the orchestrator. Knowledge and Leads are optional.
type OrchestratorConfig struct {
	Providers     *ProviderSet
	History       *HistoryBuilder
	Knowledge     *KnowledgeBase
	Prompt        *PromptBuilder
	Leads         leads.Repository
	MediaMaxBytes int64
	ModelTimeout  time.Duration
	Logger        *logging.Logger
}

// Orchestrator produces the agent's reply to one inbound turn.
type Orchestrator struct {
	providers *ProviderSet
	history   *HistoryBuilder
	knowledge *KnowledgeBase
	prompt    *PromptBuilder
	leads     leads.Repository
	media     mediaProcessor
	timeout   time.Duration
	logger    *logging.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Providers == nil {
		return nil, errors.New("conversation: provider set required")
	}
	if cfg.History == nil {
		return nil, errors.New("conversation: history builder required")
	}
	if cfg.Prompt == nil {
		p, err := NewPromptBuilder("")
		if err != nil {
			return nil, err
		}
		cfg.Prompt = p
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 45 * time.Second
	}
	if cfg.MediaMaxBytes <= 0 {
		cfg.MediaMaxBytes = 16 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Orchestrator{
		providers: cfg.Providers,
		history:   cfg.History,
		knowledge: cfg.Knowledge,
		prompt:    cfg.Prompt,
		leads:     cfg.Leads,
		media:     mediaProcessor{maxBytes: cfg.MediaMaxBytes},
		timeout:   cfg.ModelTimeout,
		logger:    cfg.Logger,
	}, nil
}

// Respond selects the provider once and runs every sub-step with it. Any
// provider failure is returned as *AgentExecutionError and nothing is sent.
func (o *Orchestrator) Respond(ctx context.Context, req RespondRequest) (*AgentReply, error) {
	ctx, span := tracer.Start(ctx, "conversation.respond")
	defer span.End()

	if req.Agent == nil || req.Conversation == nil {
		return nil, errors.New("conversation: respond requires agent and conversation")
	}
	provider, err := o.providers.Select(req.Agent.ModelProvider)
	if err != nil {
		span.RecordError(err)
		return nil, executionError(req.Agent.ModelProvider, "select_provider", err)
	}
	span.SetAttributes(
		attribute.String("leadflow.provider", provider.Name()),
		attribute.String("leadflow.message_kind", string(req.Event.Kind)),
	)

	if unsupportedKind(req.Event.Kind) {
		return &AgentReply{
			OutputText: unsupportedMediaReply,
			Type:       ReplyText,
			ProviderMetadata: map[string]any{
				"provider": provider.Name(),
				"fallback": "unsupported_media",
			},
		}, nil
	}

	fail := func(stage string, err error) (*AgentReply, error) {
		span.RecordError(err)
		return nil, executionError(provider.Name(), stage, err)
	}

	var input turnInput
	var stage string
	err = o.bounded(ctx, func(ctx context.Context) error {
		var err error
		input, stage, err = o.media.prepare(ctx, provider, req.Fetcher, req.Credentials, &req.Event, req.Agent.Language)
		return err
	})
	if err != nil {
		if stage == "" {
			stage = "media"
		}
		return fail(stage, err)
	}
	if input.derivedKey != "" && req.MessageID != "" {
		fields := map[string]any{input.derivedKey: input.derivedValue}
		if err := o.history.RecordDerived(ctx, req.Conversation.ID, req.MessageID, fields); err != nil {
			o.logger.Warn("failed to record derived input",
				"conversation_id", req.Conversation.ID,
				"message_id", req.MessageID,
				"error", err,
			)
		}
	}
	userText := strings.TrimSpace(input.text)
	if userText == "" {
		userText = "(empty message)"
	}

	var knowledge []string
	if o.knowledge != nil {
		err = o.bounded(ctx, func(ctx context.Context) error {
			var err error
			knowledge, err = o.knowledge.Retrieve(ctx, provider, req.Agent.ID, userText)
			return err
		})
		if err != nil {
			return fail("knowledge", err)
		}
	}

	var history *History
	err = o.bounded(ctx, func(ctx context.Context) error {
		var err error
		history, err = o.history.Build(ctx, provider, req.Conversation.ID, req.MessageID)
		return err
	})
	if err != nil {
		return fail("history", err)
	}

	system, err := o.prompt.Build(req.Agent, PromptData{
		CustomerName: req.Event.CustomerName,
		Knowledge:    knowledge,
		Summary:      history.Summary,
	})
	if err != nil {
		return fail("prompt", err)
	}

	messages := append(append([]ChatMessage(nil), history.Messages...), ChatMessage{Role: ChatRoleUser, Content: userText})
	tools := &toolbox{leads: o.leads}
	if req.Lead != nil {
		tools.leadID = req.Lead.ID
	}
	resp, toolCalls, err := o.complete(ctx, span, provider, system, messages, tools)
	if err != nil {
		return fail("complete", err)
	}

	reply := &AgentReply{
		OutputText: resp.Text,
		Type:       ReplyText,
		ProviderMetadata: map[string]any{
			"provider":      provider.Name(),
			"model":         resp.Model,
			"finish_reason": resp.FinishReason,
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
			"tool_calls":    toolCalls,
			"knowledge":     len(knowledge),
		},
	}
	if history.Summary != "" {
		reply.ProviderMetadata["history_summarized"] = true
	}
	if input.derived {
		reply.ProviderMetadata["derived_input"] = input.text
	}

	if req.Agent.RepliesWithVoice(req.Event.Kind == channels.KindAudio) {
		var speech *Speech
		err = o.bounded(ctx, func(ctx context.Context) error {
			var err error
			speech, err = provider.Synthesize(ctx, resp.Text, req.Agent.Language)
			return err
		})
		if err != nil {
			return fail("synthesize", err)
		}
		reply.Type = ReplyAudio
		reply.Output = base64.StdEncoding.EncodeToString(speech.Data)
		reply.MimeType = speech.MimeType
	}
	return reply, nil
}

// complete runs the chat call and the bounded tool loop.
func (o *Orchestrator) complete(ctx context.Context, span trace.Span, provider ModelProvider, system string, messages []ChatMessage, tools *toolbox) (*CompletionResponse, int, error) {
	calls := 0
	for round := 0; ; round++ {
		req := CompletionRequest{System: system, Messages: messages}
		if round < maxToolRounds {
			req.Tools = tools.definitions()
		}
		var resp *CompletionResponse
		err := o.bounded(ctx, func(ctx context.Context) error {
			var err error
			resp, err = provider.Complete(ctx, req)
			return err
		})
		if err != nil {
			return nil, calls, err
		}
		if len(resp.ToolCalls) == 0 || round >= maxToolRounds {
			if resp.Text == "" {
				return nil, calls, fmt.Errorf("conversation: %s returned an empty reply", provider.Name())
			}
			if span.IsRecording() {
				span.SetAttributes(attribute.Int("leadflow.tool_calls", calls))
			}
			return resp, calls, nil
		}

		messages = append(messages, ChatMessage{Role: ChatRoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			calls++
			result, err := tools.execute(ctx, call)
			if err != nil {
				return nil, calls, err
			}
			o.logger.Debug("tool executed", "tool", call.Name, "result", result)
			messages = append(messages, ChatMessage{Role: ChatRoleTool, Content: result, ToolCallID: call.ID, Name: call.Name})
		}
	}
}

func (o *Orchestrator) bounded(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return fn(callCtx)
}
