package uazapi

import "encoding/json"

// Event is the envelope UAZAPI posts to a webhook. Only "messages" events
// carry customer messages.
type Event struct {
	EventType    string   `json:"EventType"`
	InstanceName string   `json:"instanceName"`
	Owner        string   `json:"owner"`
	Token        string   `json:"token"`
	BaseURL      string   `json:"BaseUrl"`
	Chat         *Chat    `json:"chat,omitempty"`
	Message      *Message `json:"message,omitempty"`
}

// Chat describes the conversation the message belongs to.
type Chat struct {
	WaChatID string `json:"wa_chatid"`
	Name     string `json:"name"`
	WaName   string `json:"wa_name"`
}

// Message is one WhatsApp message as reported by UAZAPI.
type Message struct {
	ID               string          `json:"id"`
	MessageID        string          `json:"messageid"`
	ChatID           string          `json:"chatid"`
	Sender           string          `json:"sender"`
	SenderName       string          `json:"senderName"`
	IsGroup          bool            `json:"isGroup"`
	FromMe           bool            `json:"fromMe"`
	WasSentByAPI     bool            `json:"wasSentByApi"`
	MessageType      string          `json:"messageType"`
	MediaType        string          `json:"mediaType"`
	MessageTimestamp int64           `json:"messageTimestamp"`
	Text             string          `json:"text"`
	Content          json.RawMessage `json:"content,omitempty"`
}

// MediaContent is the media descriptor UAZAPI places in Message.Content.
type MediaContent struct {
	URL      string `json:"URL"`
	Mimetype string `json:"mimetype"`
	Caption  string `json:"caption"`
	FileName string `json:"fileName"`
	Seconds  int    `json:"seconds"`
	PTT      bool   `json:"PTT"`
}

// SendTextRequest is the body of /send/text.
type SendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendMediaRequest is the body of /send/media.
type SendMediaRequest struct {
	Number   string `json:"number"`
	Type     string `json:"type"`
	File     string `json:"file"`
	Mimetype string `json:"mimetype,omitempty"`
}

// SendResponse is returned by the send endpoints.
type SendResponse struct {
	ID        string `json:"id"`
	MessageID string `json:"messageid"`
}

// DownloadRequest is the body of /message/download.
type DownloadRequest struct {
	ID         string `json:"id"`
	ReturnLink bool   `json:"return_link"`
}

// DownloadResponse points at the decrypted media.
type DownloadResponse struct {
	FileURL  string `json:"fileURL"`
	Mimetype string `json:"mimetype"`
}
