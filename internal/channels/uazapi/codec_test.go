package uazapi

import (
	"errors"
	"testing"

	"github.com/wolfman30/leadflow/internal/channels"
)

func event(message string) string {
	return `{"EventType":"messages","instanceName":"loja","token":"inst-token","BaseUrl":"https://free.uazapi.com",` +
		`"chat":{"wa_chatid":"5511988887777@s.whatsapp.net","wa_name":"Ana"},"message":` + message + `}`
}

func TestCodecNormalize(t *testing.T) {
	tests := []struct {
		name string
		body string
		skip bool
		kind channels.MessageKind
		text string
		url  string
	}{
		{
			name: "conversation text",
			body: event(`{"messageid":"3EB0","chatid":"5511988887777@s.whatsapp.net","messageType":"Conversation","messageTimestamp":1700000000000,"text":"Hello"}`),
			kind: channels.KindText, text: "Hello",
		},
		{
			name: "extended text",
			body: event(`{"messageid":"3EB1","chatid":"5511988887777@s.whatsapp.net","messageType":"ExtendedTextMessage","messageTimestamp":1700000000,"text":"see https://x"}`),
			kind: channels.KindText, text: "see https://x",
		},
		{
			name: "voice note",
			body: event(`{"messageid":"3EB2","chatid":"5511988887777@s.whatsapp.net","messageType":"AudioMessage","mediaType":"ptt","messageTimestamp":1700000000000,"content":{"URL":"https://mmg/a.enc","mimetype":"audio/ogg; codecs=opus","PTT":true}}`),
			kind: channels.KindAudio, url: "https://mmg/a.enc",
		},
		{
			name: "image with caption",
			body: event(`{"messageid":"3EB3","chatid":"5511988887777@s.whatsapp.net","messageType":"ImageMessage","mediaType":"image","messageTimestamp":1700000000000,"text":"look","content":{"URL":"https://mmg/i.enc","mimetype":"image/jpeg"}}`),
			kind: channels.KindImage, text: "look", url: "https://mmg/i.enc",
		},
		{
			name: "video by message type only",
			body: event(`{"messageid":"3EB4","chatid":"5511988887777@s.whatsapp.net","messageType":"VideoMessage","messageTimestamp":1700000000000}`),
			kind: channels.KindVideo,
		},
		{
			name: "unknown media type becomes document",
			body: event(`{"messageid":"3EB5","chatid":"5511988887777@s.whatsapp.net","messageType":"Other","mediaType":"contact_card","messageTimestamp":1700000000000}`),
			kind: channels.KindDocument,
		},
		{name: "from me", body: event(`{"messageid":"x","chatid":"5511@s.whatsapp.net","fromMe":true,"messageType":"Conversation","text":"echo"}`), skip: true},
		{name: "sent by api", body: event(`{"messageid":"x","chatid":"5511@s.whatsapp.net","wasSentByApi":true,"messageType":"Conversation","text":"echo"}`), skip: true},
		{name: "group", body: event(`{"messageid":"x","chatid":"120363@g.us","messageType":"Conversation","text":"hi"}`), skip: true},
		{name: "reaction", body: event(`{"messageid":"x","chatid":"5511@s.whatsapp.net","messageType":"ReactionMessage","text":"👍"}`), skip: true},
		{name: "connection event", body: `{"EventType":"connection","token":"inst-token","instance":{"status":"connected"}}`, skip: true},
		{name: "presence event", body: `{"EventType":"presence","token":"inst-token"}`, skip: true},
	}

	codec := NewCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := codec.Normalize([]byte(tt.body))
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if tt.skip {
				if len(events) != 0 {
					t.Fatalf("expected skip, got %+v", events)
				}
				return
			}
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			evt := events[0]
			if evt.CorrelationKey != "inst-token" || evt.Provider != channels.ProviderUAZAPI {
				t.Errorf("unexpected provider/key %s/%s", evt.Provider, evt.CorrelationKey)
			}
			if evt.CustomerID != "5511988887777" {
				t.Errorf("customer = %s", evt.CustomerID)
			}
			if evt.Timestamp != 1700000000000 {
				t.Errorf("timestamp = %d", evt.Timestamp)
			}
			if evt.Kind != tt.kind || evt.Text != tt.text {
				t.Errorf("kind/text = %s/%q, want %s/%q", evt.Kind, evt.Text, tt.kind, tt.text)
			}
			if evt.Kind != channels.KindText {
				if evt.Media == nil || evt.Media.MessageID == "" {
					t.Fatalf("expected media ref with message id, got %+v", evt.Media)
				}
				if evt.Media.URL != tt.url {
					t.Errorf("media url = %s, want %s", evt.Media.URL, tt.url)
				}
			}
		})
	}
}

func TestCodecMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":          `{`,
		"no message":        `{"EventType":"messages","token":"t"}`,
		"no token":          `{"EventType":"messages","message":{"messageid":"x","chatid":"5511@s.whatsapp.net","messageType":"Conversation","text":"hi"}}`,
		"no message id":     event(`{"chatid":"5511@s.whatsapp.net","messageType":"Conversation","text":"hi"}`),
		"bad media content": event(`{"messageid":"3EB4","chatid":"5511988887777@s.whatsapp.net","messageType":"AudioMessage","mediaType":"ptt","content":{"URL":42,"mimetype":"audio/ogg"}}`),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewCodec().Normalize([]byte(body))
			var malformed *channels.MalformedPayloadError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedPayloadError, got %v", err)
			}
		})
	}
}
