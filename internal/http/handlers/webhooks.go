package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wolfman30/leadflow/internal/channels"
	"github.com/wolfman30/leadflow/internal/channels/meta"
	"github.com/wolfman30/leadflow/internal/conversation"
	"github.com/wolfman30/leadflow/internal/worker"
	"github.com/wolfman30/leadflow/pkg/logging"
)

const maxWebhookBody = 2 << 20

// Pipeline is the subset of *conversation.Pipeline the webhooks drive.
type Pipeline interface {
	Ingest(ctx context.Context, evt channels.InboundEvent) (*conversation.Resolution, error)
	Reply(ctx context.Context, res *conversation.Resolution) error
	Process(ctx context.Context, evt channels.InboundEvent) error
}

// TaskRunner schedules work after the webhook has been acknowledged.
type TaskRunner interface {
	Go(name string, fn worker.Task) error
}

// WebhookConfig wires the webhook handler.
type WebhookConfig struct {
	Registry        *channels.Registry
	Pipeline        Pipeline
	Runner          TaskRunner
	MetaVerifyToken string
	MetaAppSecret   string
	Logger          *logging.Logger
}

// WebhookHandler receives provider webhooks for all WhatsApp channels.
type WebhookHandler struct {
	registry    *channels.Registry
	pipeline    Pipeline
	runner      TaskRunner
	verifyToken string
	appSecret   string
	logger      *logging.Logger
}

// NewWebhookHandler creates the handler. Registry, Pipeline and Runner are required.
func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Registry == nil || cfg.Pipeline == nil || cfg.Runner == nil {
		panic("handlers: webhook handler requires registry, pipeline and runner")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		registry:    cfg.Registry,
		pipeline:    cfg.Pipeline,
		runner:      cfg.Runner,
		verifyToken: cfg.MetaVerifyToken,
		appSecret:   cfg.MetaAppSecret,
		logger:      cfg.Logger.Component("webhooks"),
	}
}

// MetaVerify answers the Cloud API subscription challenge.
func (h *WebhookHandler) MetaVerify(w http.ResponseWriter, r *http.Request) {
	challenge, ok := meta.VerifyChallenge(r.URL.Query(), h.verifyToken)
	if !ok {
		h.logger.Warn("meta webhook verification rejected", "mode", r.URL.Query().Get("hub.mode"))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// MetaEvents acknowledges the delivery first and resolves every event in
// the background. Unknown integrations are only logged.
func (h *WebhookHandler) MetaEvents(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if h.appSecret != "" && !meta.VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("meta webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	events, ok := h.normalize(w, channels.ProviderMeta, body)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})

	for _, evt := range events {
		evt := evt
		err := h.runner.Go("meta.process", func(ctx context.Context) error {
			return h.pipeline.Process(ctx, evt)
		})
		if err != nil {
			h.logger.Error("failed to schedule meta event", "message_id", evt.MessageID, "error", err)
		}
	}
}

// ZAPIEvents handles Z-API "on receive" callbacks.
func (h *WebhookHandler) ZAPIEvents(w http.ResponseWriter, r *http.Request) {
	h.syncEvents(w, r, channels.ProviderZAPI)
}

// UAZAPIEvents handles UAZAPI messages events.
func (h *WebhookHandler) UAZAPIEvents(w http.ResponseWriter, r *http.Request) {
	h.syncEvents(w, r, channels.ProviderUAZAPI)
}

// syncEvents resolves before acknowledging so an unknown instance gets a
// 404, then replies in the background.
func (h *WebhookHandler) syncEvents(w http.ResponseWriter, r *http.Request, provider channels.Provider) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	events, ok := h.normalize(w, provider, body)
	if !ok {
		return
	}

	resolved := make([]*conversation.Resolution, 0, len(events))
	for _, evt := range events {
		res, err := h.pipeline.Ingest(r.Context(), evt)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, conversation.ErrIntegrationNotFound) || errors.Is(err, conversation.ErrAgentUnavailable) {
				status = http.StatusNotFound
			}
			h.logger.Warn("webhook event rejected",
				"provider", provider,
				"correlation_key", evt.CorrelationKey,
				"status", status,
				"error", err,
			)
			jsonError(w, http.StatusText(status), status)
			return
		}
		resolved = append(resolved, res)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})

	for _, res := range resolved {
		res := res
		if res.Duplicate {
			continue
		}
		err := h.runner.Go(string(provider)+".reply", func(ctx context.Context) error {
			return h.pipeline.Reply(ctx, res)
		})
		if err != nil {
			h.logger.Error("failed to schedule reply", "provider", provider, "conversation_id", res.Conversation.ID, "error", err)
		}
	}
}

func (h *WebhookHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		jsonError(w, "failed to read body", http.StatusBadRequest)
		return nil, false
	}
	if len(body) > maxWebhookBody {
		jsonError(w, "payload too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	return body, true
}

func (h *WebhookHandler) normalize(w http.ResponseWriter, provider channels.Provider, body []byte) ([]channels.InboundEvent, bool) {
	ch, err := h.registry.Get(provider)
	if err != nil {
		h.logger.Error("channel not registered", "provider", provider)
		jsonError(w, "channel not configured", http.StatusNotFound)
		return nil, false
	}
	events, err := ch.Codec.Normalize(body)
	if err != nil {
		var malformed *channels.MalformedPayloadError
		if errors.As(err, &malformed) {
			h.logger.Warn("malformed webhook payload", "provider", provider, "error", err)
			jsonError(w, "malformed payload", http.StatusBadRequest)
			return nil, false
		}
		h.logger.Error("webhook normalize failed", "provider", provider, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	if len(events) == 0 {
		h.logger.Debug("webhook carries nothing to process", "provider", provider)
	}
	return events, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
