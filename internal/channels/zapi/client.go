package zapi

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
	defaultBaseURL     = "https://api.z-api.io"
	defaultHTTPTimeout = 15 * time.Second

	// Integration metadata keys.
	CredInstanceID  = "instance_id"
	CredToken       = "token"
	CredClientToken = "client_token"
	CredBaseURL     = "base_url"
)

// Client talks to the Z-API REST API.
type Client struct {
	baseURL     string
	clientToken string
	httpClient  *http.Client
}

// NewClient creates a Z-API client. clientToken is the account security
// token, used when an integration does not carry its own.
func NewClient(baseURL, clientToken string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		clientToken: clientToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) endpoint(creds channels.Credentials, action string) (string, map[string]string, error) {
	instanceID := creds.Get(CredInstanceID)
	token := creds.Get(CredToken)
	if instanceID == "" || token == "" {
		return "", nil, fmt.Errorf("zapi: integration missing %s or %s", CredInstanceID, CredToken)
	}
	base := c.baseURL
	if override := creds.Get(CredBaseURL); override != "" {
		base = strings.TrimRight(override, "/")
	}
	headers := map[string]string{}
	if ct := creds.Get(CredClientToken); ct != "" {
		headers["Client-Token"] = ct
	} else if c.clientToken != "" {
		headers["Client-Token"] = c.clientToken
	}
	return fmt.Sprintf("%s/instances/%s/token/%s/%s", base, instanceID, token, action), headers, nil
}

// SendText sends a text message.
func (c *Client) SendText(ctx context.Context, creds channels.Credentials, to, text string) (*channels.SendResult, error) {
	url, headers, err := c.endpoint(creds, "send-text")
	if err != nil {
		return nil, err
	}
	var resp SendResponse
	if err := channels.DoJSON(ctx, c.httpClient, channels.ProviderZAPI, http.MethodPost, url, headers,
		SendTextRequest{Phone: to, Message: text}, &resp); err != nil {
		return nil, err
	}
	return &channels.SendResult{MessageID: firstNonEmpty(resp.MessageID, resp.ID, resp.ZaapID)}, nil
}

// SendAudio sends a voice note as a base64 data URI.
func (c *Client) SendAudio(ctx context.Context, creds channels.Credentials, to string, audio []byte, mimeType string) (*channels.SendResult, error) {
	url, headers, err := c.endpoint(creds, "send-audio")
	if err != nil {
		return nil, err
	}
	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(audio))
	var resp SendResponse
	if err := channels.DoJSON(ctx, c.httpClient, channels.ProviderZAPI, http.MethodPost, url, headers,
		SendAudioRequest{Phone: to, Audio: dataURI, Waveform: true}, &resp); err != nil {
		return nil, err
	}
	return &channels.SendResult{MessageID: firstNonEmpty(resp.MessageID, resp.ID, resp.ZaapID)}, nil
}

// FetchMedia downloads media from the URL Z-API put in the callback.
func (c *Client) FetchMedia(ctx context.Context, creds channels.Credentials, ref channels.MediaRef, maxBytes int64) (*channels.Media, error) {
	if ref.URL == "" {
		return nil, fmt.Errorf("zapi: media reference has no url")
	}
	media, err := channels.Download(ctx, c.httpClient, channels.ProviderZAPI, ref.URL, nil, maxBytes)
	if err != nil {
		return nil, err
	}
	if ref.MimeType != "" {
		media.MimeType = ref.MimeType
	}
	return media, nil
}
