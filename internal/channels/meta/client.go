package meta

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/wolfman30/leadflow/internal/channels"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v21.0"
	defaultHTTPTimeout  = 15 * time.Second

	// CredAccessToken and CredPhoneNumberID are the integration metadata keys.
	CredAccessToken   = "access_token"
	CredPhoneNumberID = "phone_number_id"
)

// Client sends and downloads messages via the WhatsApp Cloud API.
type Client struct {
	graphAPIBase string
	httpClient   *http.Client
}

// NewClient creates a new Graph API client. An empty base uses the public API.
func NewClient(graphAPIBase string, timeout time.Duration) *Client {
	if graphAPIBase == "" {
		graphAPIBase = defaultGraphAPIBase
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		graphAPIBase: strings.TrimRight(graphAPIBase, "/"),
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = strings.TrimRight(base, "/")
}

func credentials(creds channels.Credentials) (token, phoneNumberID string, err error) {
	token = creds.Get(CredAccessToken, "token")
	phoneNumberID = creds.Get(CredPhoneNumberID)
	if token == "" || phoneNumberID == "" {
		return "", "", fmt.Errorf("meta: integration missing %s or %s", CredAccessToken, CredPhoneNumberID)
	}
	return token, phoneNumberID, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, creds channels.Credentials, to, text string) (*channels.SendResult, error) {
	token, phoneNumberID, err := credentials(creds)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, token, phoneNumberID, SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &SendText{Body: text},
	})
}

// audioTypes are the audio encodings the Cloud API accepts for upload.
var audioTypes = map[string]bool{
	"audio/aac":  true,
	"audio/amr":  true,
	"audio/mpeg": true,
	"audio/mp4":  true,
	"audio/ogg":  true,
}

// AcceptsAudio reports whether the Cloud API takes audio of this type.
func (c *Client) AcceptsAudio(mimeType string) bool {
	base, _, _ := strings.Cut(mimeType, ";")
	return audioTypes[strings.ToLower(strings.TrimSpace(base))]
}

// SendAudio uploads the audio and sends it as a voice message.
func (c *Client) SendAudio(ctx context.Context, creds channels.Credentials, to string, audio []byte, mimeType string) (*channels.SendResult, error) {
	token, phoneNumberID, err := credentials(creds)
	if err != nil {
		return nil, err
	}
	mediaID, err := c.upload(ctx, token, phoneNumberID, audio, mimeType)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, token, phoneNumberID, SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "audio",
		Audio:            &SendMedia{ID: mediaID},
	})
}

// FetchMedia resolves the media id to its URL and downloads the bytes.
func (c *Client) FetchMedia(ctx context.Context, creds channels.Credentials, ref channels.MediaRef, maxBytes int64) (*channels.Media, error) {
	token := creds.Get(CredAccessToken, "token")
	if token == "" {
		return nil, fmt.Errorf("meta: integration missing %s", CredAccessToken)
	}
	if ref.MediaID == "" {
		return nil, fmt.Errorf("meta: media reference has no id")
	}
	var info MediaInfo
	if err := channels.DoJSON(ctx, c.httpClient, channels.ProviderMeta, http.MethodGet,
		fmt.Sprintf("%s/%s", c.graphAPIBase, ref.MediaID), bearer(token), nil, &info); err != nil {
		return nil, err
	}
	if info.URL == "" {
		return nil, fmt.Errorf("meta: media %s has no url", ref.MediaID)
	}
	if maxBytes > 0 && info.FileSize > maxBytes {
		return nil, channels.ErrMediaTooLarge
	}
	media, err := channels.Download(ctx, c.httpClient, channels.ProviderMeta, info.URL, bearer(token), maxBytes)
	if err != nil {
		return nil, err
	}
	if info.MimeType != "" {
		media.MimeType = info.MimeType
	} else if media.MimeType == "" {
		media.MimeType = ref.MimeType
	}
	return media, nil
}

func (c *Client) send(ctx context.Context, token, phoneNumberID string, req SendRequest) (*channels.SendResult, error) {
	var resp SendResponse
	url := fmt.Sprintf("%s/%s/messages", c.graphAPIBase, phoneNumberID)
	if err := channels.DoJSON(ctx, c.httpClient, channels.ProviderMeta, http.MethodPost, url, bearer(token), req, &resp); err != nil {
		return nil, err
	}
	result := &channels.SendResult{}
	if len(resp.Messages) > 0 {
		result.MessageID = resp.Messages[0].ID
	}
	return result, nil
}

func (c *Client) upload(ctx context.Context, token, phoneNumberID string, data []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", fmt.Errorf("meta: build upload: %w", err)
	}
	if err := w.WriteField("type", mimeType); err != nil {
		return "", fmt.Errorf("meta: build upload: %w", err)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="reply`+extensionFor(mimeType)+`"`)
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("meta: build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("meta: build upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("meta: build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/%s/media", c.graphAPIBase, phoneNumberID), &body)
	if err != nil {
		return "", fmt.Errorf("meta: create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp UploadResponse
	if err := channels.Do(c.httpClient, channels.ProviderMeta, req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("meta: upload returned no media id")
	}
	return resp.ID, nil
}

func extensionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mimeType, "audio/mpeg"):
		return ".mp3"
	case strings.HasPrefix(mimeType, "audio/wav"), strings.HasPrefix(mimeType, "audio/x-wav"):
		return ".wav"
	default:
		return ""
	}
}
