package zapi

import (
	"errors"
	"testing"

	"github.com/wolfman30/leadflow/internal/channels"
)

func callback(extra string) string {
	return `{"type":"ReceivedCallback","instanceId":"inst-1","messageId":"3EB0A1","phone":"+55 (11) 98888-7777",` +
		`"fromMe":false,"isGroup":false,"momment":1700000000123,"senderName":"Ana",` + extra + `}`
}

func TestCodecNormalize(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		skip    bool
		kind    channels.MessageKind
		text    string
		url     string
	}{
		{name: "text", body: callback(`"text":{"message":"Hello"}`), kind: channels.KindText, text: "Hello"},
		{name: "image", body: callback(`"image":{"imageUrl":"https://cdn/x.jpg","mimeType":"image/jpeg","caption":"look"}`), kind: channels.KindImage, text: "look", url: "https://cdn/x.jpg"},
		{name: "audio", body: callback(`"audio":{"audioUrl":"https://cdn/a.ogg","mimeType":"audio/ogg; codecs=opus","ptt":true}`), kind: channels.KindAudio, url: "https://cdn/a.ogg"},
		{name: "video", body: callback(`"video":{"videoUrl":"https://cdn/v.mp4","mimeType":"video/mp4"}`), kind: channels.KindVideo, url: "https://cdn/v.mp4"},
		{name: "document", body: callback(`"document":{"documentUrl":"https://cdn/d.pdf","mimeType":"application/pdf","fileName":"d.pdf"}`), kind: channels.KindDocument, url: "https://cdn/d.pdf"},
		{name: "sticker", body: callback(`"sticker":{"stickerUrl":"https://cdn/s.webp","mimeType":"image/webp"}`), kind: channels.KindImage, url: "https://cdn/s.webp"},
		{name: "button reply", body: callback(`"buttonsResponseMessage":{"buttonId":"1","message":"Sim"}`), kind: channels.KindText, text: "Sim"},
		{name: "unknown content", body: callback(`"location":{"latitude":1}`), skip: true},
		{name: "from me", body: `{"type":"ReceivedCallback","instanceId":"inst-1","messageId":"m","phone":"5511","fromMe":true,"text":{"message":"echo"}}`, skip: true},
		{name: "group", body: `{"type":"ReceivedCallback","instanceId":"inst-1","messageId":"m","phone":"120363-group","isGroup":true,"text":{"message":"hi"}}`, skip: true},
		{name: "status callback", body: `{"type":"MessageStatusCallback","instanceId":"inst-1","status":"READ","ids":["m"]}`, skip: true},
		{name: "connection callback", body: `{"type":"ConnectedCallback","instanceId":"inst-1","connected":true}`, skip: true},
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
			if evt.Provider != channels.ProviderZAPI || evt.CorrelationKey != "inst-1" {
				t.Errorf("unexpected provider/key %s/%s", evt.Provider, evt.CorrelationKey)
			}
			if evt.CustomerID != "5511988887777" {
				t.Errorf("customer = %s", evt.CustomerID)
			}
			if evt.Timestamp != 1700000000123 {
				t.Errorf("timestamp = %d", evt.Timestamp)
			}
			if evt.Kind != tt.kind || evt.Text != tt.text {
				t.Errorf("kind/text = %s/%q, want %s/%q", evt.Kind, evt.Text, tt.kind, tt.text)
			}
			if tt.url != "" && (evt.Media == nil || evt.Media.URL != tt.url) {
				t.Errorf("expected media url %s, got %+v", tt.url, evt.Media)
			}
		})
	}
}

func TestCodecMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":        `[1,2`,
		"empty":           `  `,
		"missing phone":   `{"type":"ReceivedCallback","instanceId":"inst-1","messageId":"m","text":{"message":"hi"}}`,
		"missing message": `{"type":"ReceivedCallback","instanceId":"inst-1","phone":"5511","text":{"message":"hi"}}`,
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
