package zapi

import (
	"bytes"
	"encoding/json"

	"github.com/wolfman30/leadflow/internal/channels"
)

const receivedCallback = "ReceivedCallback"

// Codec normalizes Z-API callbacks.
type Codec struct{}

// NewCodec returns the Z-API codec.
func NewCodec() Codec { return Codec{} }

// Provider implements channels.Codec.
func (Codec) Provider() channels.Provider { return channels.ProviderZAPI }

// Normalize maps a received-message callback to one event. Own messages,
// groups, newsletters, and non-message callbacks are skipped.
func (Codec) Normalize(raw []byte) ([]channels.InboundEvent, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, channels.Malformed(channels.ProviderZAPI, "empty body", nil)
	}
	var cb Callback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, channels.Malformed(channels.ProviderZAPI, "decode body", err)
	}
	if cb.Type != receivedCallback {
		return nil, nil
	}
	if cb.FromMe || cb.IsGroup || cb.IsNewsletter || cb.Broadcast || cb.IsStatusReply || cb.WaitingMessage {
		return nil, nil
	}
	customer := channels.DigitsOnly(cb.Phone)
	if cb.InstanceID == "" || cb.MessageID == "" || customer == "" {
		return nil, channels.Malformed(channels.ProviderZAPI, "callback missing instanceId, messageId or phone", nil)
	}

	evt := channels.InboundEvent{
		Provider:       channels.ProviderZAPI,
		CorrelationKey: cb.InstanceID,
		CustomerID:     customer,
		CustomerName:   firstNonEmpty(cb.SenderName, cb.ChatName),
		MessageID:      cb.MessageID,
		Timestamp:      channels.MillisFromUnix(cb.Momment),
		Raw:            json.RawMessage(raw),
	}
	if !classify(&evt, cb) {
		return nil, nil
	}
	return []channels.InboundEvent{evt}, nil
}

func classify(evt *channels.InboundEvent, cb Callback) bool {
	ref := func(url, mime, caption, name string) *channels.MediaRef {
		return &channels.MediaRef{
			Provider:  channels.ProviderZAPI,
			MessageID: cb.MessageID,
			URL:       url,
			MimeType:  mime,
			Caption:   caption,
			FileName:  name,
		}
	}
	switch {
	case cb.Text != nil:
		evt.Kind = channels.KindText
		evt.Text = cb.Text.Message
	case cb.ButtonsResponseMessage != nil:
		evt.Kind = channels.KindText
		evt.Text = cb.ButtonsResponseMessage.Message
	case cb.ListResponseMessage != nil:
		evt.Kind = channels.KindText
		evt.Text = firstNonEmpty(cb.ListResponseMessage.Title, cb.ListResponseMessage.Message)
	case cb.Image != nil && cb.Image.ImageURL != "":
		evt.Kind = channels.KindImage
		evt.Text = cb.Image.Caption
		evt.Media = ref(cb.Image.ImageURL, cb.Image.MimeType, cb.Image.Caption, "")
	case cb.Sticker != nil && cb.Sticker.StickerURL != "":
		evt.Kind = channels.KindImage
		evt.Media = ref(cb.Sticker.StickerURL, cb.Sticker.MimeType, "", "")
	case cb.Audio != nil && cb.Audio.AudioURL != "":
		evt.Kind = channels.KindAudio
		evt.Media = ref(cb.Audio.AudioURL, cb.Audio.MimeType, "", "")
	case cb.Video != nil && cb.Video.VideoURL != "":
		evt.Kind = channels.KindVideo
		evt.Text = cb.Video.Caption
		evt.Media = ref(cb.Video.VideoURL, cb.Video.MimeType, cb.Video.Caption, "")
	case cb.Document != nil && cb.Document.DocumentURL != "":
		evt.Kind = channels.KindDocument
		evt.Text = cb.Document.Caption
		evt.Media = ref(cb.Document.DocumentURL, cb.Document.MimeType, cb.Document.Caption, firstNonEmpty(cb.Document.FileName, cb.Document.Title))
	default:
		return false
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
