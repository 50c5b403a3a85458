package uazapi

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/wolfman30/leadflow/internal/channels"
)

// Codec normalizes UAZAPI webhook events.
type Codec struct{}

// NewCodec returns the UAZAPI codec.
func NewCodec() Codec { return Codec{} }

// Provider implements channels.Codec.
func (Codec) Provider() channels.Provider { return channels.ProviderUAZAPI }

// Normalize maps a "messages" event to one inbound event.
func (Codec) Normalize(raw []byte) ([]channels.InboundEvent, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, channels.Malformed(channels.ProviderUAZAPI, "empty body", nil)
	}
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, channels.Malformed(channels.ProviderUAZAPI, "decode body", err)
	}
	if !strings.EqualFold(evt.EventType, "messages") {
		return nil, nil
	}
	if evt.Message == nil {
		return nil, channels.Malformed(channels.ProviderUAZAPI, "messages event without message", nil)
	}
	msg := evt.Message
	if msg.FromMe || msg.WasSentByAPI || msg.IsGroup || strings.HasSuffix(msg.ChatID, "@g.us") {
		return nil, nil
	}

	chatID := msg.ChatID
	if chatID == "" && evt.Chat != nil {
		chatID = evt.Chat.WaChatID
	}
	customer := channels.DigitsOnly(firstNonEmpty(chatID, msg.Sender))
	messageID := firstNonEmpty(msg.MessageID, msg.ID)
	if evt.Token == "" || customer == "" || messageID == "" {
		return nil, channels.Malformed(channels.ProviderUAZAPI, "event missing token, chat or message id", nil)
	}

	out := channels.InboundEvent{
		Provider:       channels.ProviderUAZAPI,
		CorrelationKey: evt.Token,
		CustomerID:     customer,
		CustomerName:   msg.SenderName,
		MessageID:      messageID,
		Timestamp:      channels.MillisFromUnix(msg.MessageTimestamp),
		Raw:            json.RawMessage(raw),
	}
	if out.CustomerName == "" && evt.Chat != nil {
		out.CustomerName = firstNonEmpty(evt.Chat.WaName, evt.Chat.Name)
	}
	ok, err := classify(&out, msg, messageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return []channels.InboundEvent{out}, nil
}

// classify fills the kind and media of out. A media descriptor that is
// present but undecodable makes the event malformed.
func classify(out *channels.InboundEvent, msg *Message, messageID string) (bool, error) {
	kind, isMedia := kindOf(msg)
	if !isMedia {
		if kind == "" || strings.TrimSpace(msg.Text) == "" {
			return false, nil
		}
		out.Kind = kind
		out.Text = msg.Text
		return true, nil
	}
	var content MediaContent
	if trimmed := bytes.TrimSpace(msg.Content); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &content); err != nil {
			return false, channels.Malformed(channels.ProviderUAZAPI, "decode media content", err)
		}
	}
	caption := firstNonEmpty(content.Caption, msg.Text)
	out.Kind = kind
	out.Text = caption
	out.Media = &channels.MediaRef{
		Provider:  channels.ProviderUAZAPI,
		MessageID: messageID,
		URL:       content.URL,
		MimeType:  content.Mimetype,
		Caption:   caption,
		FileName:  content.FileName,
	}
	return true, nil
}

// kindOf derives the normalized kind from mediaType, falling back to the
// protobuf-style messageType name.
func kindOf(msg *Message) (channels.MessageKind, bool) {
	switch strings.ToLower(msg.MediaType) {
	case "image", "sticker":
		return channels.KindImage, true
	case "ptt", "audio", "myaudio":
		return channels.KindAudio, true
	case "video", "ptv":
		return channels.KindVideo, true
	case "document":
		return channels.KindDocument, true
	case "":
	default:
		return channels.KindDocument, true
	}
	switch strings.ToLower(msg.MessageType) {
	case "conversation", "extendedtextmessage", "text", "buttonsresponsemessage", "listresponsemessage", "templatebuttonreplymessage":
		return channels.KindText, false
	case "imagemessage", "stickermessage":
		return channels.KindImage, true
	case "audiomessage":
		return channels.KindAudio, true
	case "videomessage":
		return channels.KindVideo, true
	case "documentmessage", "documentwithcaptionmessage":
		return channels.KindDocument, true
	default:
		return "", false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
