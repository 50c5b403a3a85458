package uazapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/leadflow/internal/channels"
)

const (
	defaultHTTPTimeout = 15 * time.Second

	// Integration metadata keys.
	CredToken   = "token"
	CredBaseURL = "base_url"
)

// Client talks to a UAZAPI server. Every request authenticates with the
// instance token header.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. baseURL is used when an integration does not
// carry its own server URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) target(creds channels.Credentials, path string) (string, map[string]string, error) {
	token := creds.Get(CredToken)
	if token == "" {
		return "", nil, fmt.Errorf("uazapi: integration missing %s", CredToken)
	}
	base := c.baseURL
	if override := creds.Get(CredBaseURL); override != "" {
		base = strings.TrimRight(override, "/")
	}
	if base == "" {
		return "", nil, fmt.Errorf("uazapi: no server url configured")
	}
	return base + path, map[string]string{"token": token, "Accept": "application/json"}, nil
}

// SendText sends a text message.
func (c *Client) SendText(ctx context.Context, creds channels.Credentials, to, text string) (*channels.SendResult, error) {
	url, headers, err := c.target(creds, "/send/text")
	if err != nil {
		return nil, err
	}
	var resp SendResponse
	if err := channels.DoJSON(ctx, c.httpClient, channels.ProviderUAZAPI, http.MethodPost, url, headers,
		SendTextRequest{Number: to, Text: text}, &resp); err != nil {
		return nil, err
	}
	return &channels.SendResult{MessageID: firstNonEmpty(resp.MessageID, resp.ID)}, nil
}

// SendAudio sends base64 audio as a push-to-talk voice note.
func (c *Client) SendAudio(ctx context.Context, creds channels.Credentials, to string, audio []byte, mimeType string) (*channels.SendResult, error) {
	url, headers, err := c.target(creds, "/send/media")
	if err != nil {
		return nil, err
	}
	var resp SendResponse
	if err := channels.DoJSON(ctx, c.httpClient, channels.ProviderUAZAPI, http.MethodPost, url, headers,
		SendMediaRequest{Number: to, Type: "ptt", File: base64.StdEncoding.EncodeToString(audio), Mimetype: mimeType}, &resp); err != nil {
		return nil, err
	}
	return &channels.SendResult{MessageID: firstNonEmpty(resp.MessageID, resp.ID)}, nil
}

// FetchMedia asks the server to decrypt the media and downloads the link.
func (c *Client) FetchMedia(ctx context.Context, creds channels.Credentials, ref channels.MediaRef, maxBytes int64) (*channels.Media, error) {
	if ref.MessageID == "" {
		return nil, fmt.Errorf("uazapi: media reference has no message id")
	}
	url, headers, err := c.target(creds, "/message/download")
	if err != nil {
		return nil, err
	}
	var resp DownloadResponse
	if err := channels.DoJSON(ctx, c.httpClient, channels.ProviderUAZAPI, http.MethodPost, url, headers,
		DownloadRequest{ID: ref.MessageID, ReturnLink: true}, &resp); err != nil {
		return nil, err
	}
	if resp.FileURL == "" {
		return nil, fmt.Errorf("uazapi: download returned no file url")
	}
	media, err := channels.Download(ctx, c.httpClient, channels.ProviderUAZAPI, resp.FileURL, nil, maxBytes)
	if err != nil {
		return nil, err
	}
	if mime := firstNonEmpty(resp.Mimetype, ref.MimeType); mime != "" {
		media.MimeType = mime
	}
	return media, nil
}
