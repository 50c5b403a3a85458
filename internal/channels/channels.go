// Package channels defines the provider-neutral inbound event and the
// interfaces every WhatsApp channel (Meta Cloud API, Z-API, UAZAPI)
// implements: a codec for webhooks, a sender, and a media fetcher.
package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Provider identifies a channel integration.
type Provider string

const (
	ProviderMeta   Provider = "meta"
	ProviderZAPI   Provider = "zapi"
	ProviderUAZAPI Provider = "uazapi"
)

// MessageKind is the normalized modality of an inbound turn.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindAudio    MessageKind = "audio"
	KindVideo    MessageKind = "video"
	KindDocument MessageKind = "document"
)

// MediaRef is enough to fetch the media later; it never holds the bytes.
type MediaRef struct {
	Provider  Provider `json:"provider"`
	MessageID string   `json:"message_id,omitempty"`
	MediaID   string   `json:"media_id,omitempty"`
	URL       string   `json:"url,omitempty"`
	MimeType  string   `json:"mime_type,omitempty"`
	Caption   string   `json:"caption,omitempty"`
	FileName  string   `json:"file_name,omitempty"`
}

// InboundEvent is one customer message normalized across providers.
type InboundEvent struct {
	Provider       Provider        `json:"provider"`
	CorrelationKey string          `json:"correlation_key"`
	CustomerID     string          `json:"customer_id"`
	CustomerName   string          `json:"customer_name,omitempty"`
	MessageID      string          `json:"message_id"`
	Kind           MessageKind     `json:"kind"`
	Text           string          `json:"text,omitempty"`
	Media          *MediaRef       `json:"media,omitempty"`
	Timestamp      int64           `json:"timestamp"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// Credentials are the integration metadata used to call a provider API.
type Credentials map[string]string

// Get returns the first non-empty value among keys.
func (c Credentials) Get(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(c[k]); v != "" {
			return v
		}
	}
	return ""
}

// Codec turns a raw webhook body into inbound events. An empty slice with a
// nil error means the delivery carries nothing to process.
type Codec interface {
	Provider() Provider
	Normalize(raw []byte) ([]InboundEvent, error)
}

// SendResult reports the provider's id for an outbound message.
type SendResult struct {
	MessageID string
}

// Sender delivers replies over a channel.
type Sender interface {
	SendText(ctx context.Context, creds Credentials, to, text string) (*SendResult, error)
	SendAudio(ctx context.Context, creds Credentials, to string, audio []byte, mimeType string) (*SendResult, error)
}

// AudioFormats is implemented by senders that only deliver some audio
// encodings. Senders without it take any audio.
type AudioFormats interface {
	AcceptsAudio(mimeType string) bool
}

// AcceptsAudio reports whether s can deliver audio of the given mime type.
func AcceptsAudio(s Sender, mimeType string) bool {
	if f, ok := s.(AudioFormats); ok {
		return f.AcceptsAudio(mimeType)
	}
	return true
}

// Media is a fetched attachment.
type Media struct {
	Data     []byte
	MimeType string
}

// MediaFetcher downloads the bytes behind a MediaRef, refusing more than maxBytes.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, creds Credentials, ref MediaRef, maxBytes int64) (*Media, error)
}

// MalformedPayloadError is returned by codecs for undecodable webhooks.
type MalformedPayloadError struct {
	Provider Provider
	Reason   string
	Err      error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed payload: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed payload: %s", e.Provider, e.Reason)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// Malformed builds a MalformedPayloadError.
func Malformed(provider Provider, reason string, err error) error {
	return &MalformedPayloadError{Provider: provider, Reason: reason, Err: err}
}

// DigitsOnly strips everything but ASCII digits, so "+55 (11) 98888-7777"
// and "5511988887777@s.whatsapp.net" both yield "5511988887777".
func DigitsOnly(s string) string {
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MillisFromUnix canonicalizes a provider timestamp to epoch milliseconds.
// Values below 1e12 are treated as seconds.
func MillisFromUnix(ts int64) int64 {
	if ts <= 0 {
		return 0
	}
	if ts < 1_000_000_000_000 {
		return ts * 1000
	}
	return ts
}
