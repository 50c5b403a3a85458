package conversation

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/leadflow/internal/agents"
	"github.com/wolfman30/leadflow/internal/archive"
	"github.com/wolfman30/leadflow/internal/channels"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// MediaArchive stores synthesized replies. *archive.Store satisfies it.
type MediaArchive interface {
	PutMedia(ctx context.Context, obj archive.MediaObject) (string, error)
}

// Dispatcher persists the agent turn and delivers it through the channel.
type Dispatcher struct {
	store    Store
	registry *channels.Registry
	archive  MediaArchive
	logger   *logging.Logger
}

// NewDispatcher wires a dispatcher. archive may be nil.
func NewDispatcher(store Store, registry *channels.Registry, mediaArchive MediaArchive, logger *logging.Logger) *Dispatcher {
	if store == nil || registry == nil {
		panic("conversation: dispatcher requires store and channel registry")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{store: store, registry: registry, archive: mediaArchive, logger: logger}
}

// Send stores reply as an agent message, then sends it to the customer. The
// message stays stored when delivery fails. Nothing is retried.
func (d *Dispatcher) Send(ctx context.Context, integration *agents.Integration, conv *Conversation, to string, reply *AgentReply) (*Message, error) {
	ctx, span := tracer.Start(ctx, "conversation.dispatch")
	defer span.End()

	channel := integration.Provider
	span.SetAttributes(attribute.String("leadflow.channel", channel), attribute.String("leadflow.reply_type", string(reply.Type)))

	var audio []byte
	if reply.Type == ReplyAudio {
		var err error
		audio, err = base64.StdEncoding.DecodeString(reply.Output)
		if err != nil {
			span.RecordError(err)
			return nil, &DispatchError{Channel: channel, Err: fmt.Errorf("decode audio: %w", err)}
		}
	}

	ch, chErr := d.registry.Get(channels.Provider(channel))
	// Audio the channel cannot carry goes out as the reply text instead.
	asText := chErr == nil && reply.Type == ReplyAudio && !channels.AcceptsAudio(ch.Sender, reply.MimeType)

	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Sender:         SenderAgent,
		Content:        reply.OutputText,
		Metadata:       outboundMetadata(reply),
	}
	if asText {
		msg.Metadata["delivered_as"] = string(ReplyText)
		d.logger.Warn("channel does not accept reply audio, sending text",
			"channel", channel,
			"conversation_id", conv.ID,
			"mime_type", reply.MimeType,
		)
	}
	if audio != nil && d.archive != nil {
		key, err := d.archive.PutMedia(ctx, archive.MediaObject{
			OrgID:          conv.OrgID,
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			MimeType:       reply.MimeType,
			Data:           audio,
		})
		if err != nil {
			d.logger.Warn("reply archive failed", "conversation_id", conv.ID, "error", err)
		} else if key != "" {
			msg.Metadata["archive_key"] = key
		}
	}
	if _, err := d.store.AppendMessage(ctx, msg); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: persist reply: %w", err)
	}

	if chErr != nil {
		span.RecordError(chErr)
		return msg, &DispatchError{Channel: channel, Err: chErr}
	}
	creds := channels.Credentials(integration.Metadata)
	var err error
	if reply.Type == ReplyAudio && !asText {
		_, err = ch.Sender.SendAudio(ctx, creds, to, audio, reply.MimeType)
	} else {
		_, err = ch.Sender.SendText(ctx, creds, to, reply.OutputText)
	}
	if err != nil {
		span.RecordError(err)
		return msg, &DispatchError{Channel: channel, Err: err}
	}
	return msg, nil
}

func outboundMetadata(reply *AgentReply) map[string]any {
	md := map[string]any{"type": string(reply.Type)}
	if reply.MimeType != "" {
		md["mime_type"] = reply.MimeType
	}
	for _, k := range []string{"provider", "model", "fallback"} {
		if v, ok := reply.ProviderMetadata[k]; ok {
			md[k] = v
		}
	}
	return md
}
