package meta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wolfman30/leadflow/internal/channels"
)

// Codec normalizes WhatsApp Cloud API webhooks.
type Codec struct{}

// NewCodec returns the Meta codec.
func NewCodec() Codec { return Codec{} }

// Provider implements channels.Codec.
func (Codec) Provider() channels.Provider { return channels.ProviderMeta }

// Normalize decodes the webhook and returns one event per customer message.
// Status receipts and non-message fields produce no events.
func (Codec) Normalize(raw []byte) ([]channels.InboundEvent, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, channels.Malformed(channels.ProviderMeta, "empty body", nil)
	}
	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, channels.Malformed(channels.ProviderMeta, "decode body", err)
	}

	var events []channels.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			value := change.Value
			if len(value.Messages) == 0 {
				continue
			}
			if value.Metadata.PhoneNumberID == "" {
				return nil, channels.Malformed(channels.ProviderMeta, "missing metadata.phone_number_id", nil)
			}
			names := make(map[string]string, len(value.Contacts))
			for _, c := range value.Contacts {
				names[channels.DigitsOnly(c.WaID)] = c.Profile.Name
			}
			for _, msg := range value.Messages {
				evt, ok, err := normalizeMessage(value.Metadata.PhoneNumberID, msg)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				evt.CustomerName = names[evt.CustomerID]
				if rawMsg, err := json.Marshal(msg); err == nil {
					evt.Raw = rawMsg
				}
				events = append(events, evt)
			}
		}
	}
	return events, nil
}

func normalizeMessage(phoneNumberID string, msg Message) (channels.InboundEvent, bool, error) {
	customer := channels.DigitsOnly(msg.From)
	if customer == "" || msg.ID == "" {
		return channels.InboundEvent{}, false, channels.Malformed(channels.ProviderMeta, "message missing from or id", nil)
	}
	ts, err := parseTimestamp(msg.Timestamp)
	if err != nil {
		return channels.InboundEvent{}, false, channels.Malformed(channels.ProviderMeta, "invalid timestamp", err)
	}
	evt := channels.InboundEvent{
		Provider:       channels.ProviderMeta,
		CorrelationKey: phoneNumberID,
		CustomerID:     customer,
		MessageID:      msg.ID,
		Timestamp:      ts,
	}

	media := func(kind channels.MessageKind, obj *MediaObject) bool {
		if obj == nil || obj.ID == "" {
			return false
		}
		evt.Kind = kind
		evt.Text = obj.Caption
		evt.Media = &channels.MediaRef{
			Provider:  channels.ProviderMeta,
			MessageID: msg.ID,
			MediaID:   obj.ID,
			MimeType:  obj.MimeType,
			Caption:   obj.Caption,
			FileName:  obj.Filename,
		}
		return true
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return evt, false, nil
		}
		evt.Kind = channels.KindText
		evt.Text = msg.Text.Body
		return evt, true, nil
	case "button":
		if msg.Button == nil {
			return evt, false, nil
		}
		evt.Kind = channels.KindText
		evt.Text = msg.Button.Text
		return evt, true, nil
	case "interactive":
		if msg.Interactive == nil {
			return evt, false, nil
		}
		choice := msg.Interactive.ButtonReply
		if choice == nil {
			choice = msg.Interactive.ListReply
		}
		if choice == nil {
			return evt, false, nil
		}
		evt.Kind = channels.KindText
		evt.Text = choice.Title
		return evt, true, nil
	case "image":
		ok := media(channels.KindImage, msg.Image)
		return evt, ok, nil
	case "sticker":
		ok := media(channels.KindImage, msg.Sticker)
		return evt, ok, nil
	case "audio":
		ok := media(channels.KindAudio, msg.Audio)
		return evt, ok, nil
	case "video":
		ok := media(channels.KindVideo, msg.Video)
		return evt, ok, nil
	case "document":
		ok := media(channels.KindDocument, msg.Document)
		return evt, ok, nil
	default:
		// Unknown types are passed on as documents when they carry media.
		for _, obj := range []*MediaObject{msg.Document, msg.Image, msg.Audio, msg.Video, msg.Sticker} {
			if media(channels.KindDocument, obj) {
				return evt, true, nil
			}
		}
		return evt, false, nil
	}
}

func parseTimestamp(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return channels.MillisFromUnix(secs), nil
}
