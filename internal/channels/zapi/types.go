package zapi

// Callback is the body Z-API posts to the "on message received" webhook.
// Type distinguishes received messages from status and presence callbacks.
type Callback struct {
	Type           string `json:"type"`
	InstanceID     string `json:"instanceId"`
	MessageID      string `json:"messageId"`
	Phone          string `json:"phone"`
	ConnectedPhone string `json:"connectedPhone"`
	FromMe         bool   `json:"fromMe"`
	IsGroup        bool   `json:"isGroup"`
	IsNewsletter   bool   `json:"isNewsletter"`
	IsStatusReply  bool   `json:"isStatusReply"`
	Broadcast      bool   `json:"broadcast"`
	WaitingMessage bool   `json:"waitingMessage"`
	Momment        int64  `json:"momment"`
	Status         string `json:"status"`
	ChatName       string `json:"chatName"`
	SenderName     string `json:"senderName"`

	Text                   *Text             `json:"text,omitempty"`
	Image                  *Image            `json:"image,omitempty"`
	Audio                  *Audio            `json:"audio,omitempty"`
	Video                  *Video            `json:"video,omitempty"`
	Document               *Document         `json:"document,omitempty"`
	Sticker                *Sticker          `json:"sticker,omitempty"`
	ButtonsResponseMessage *ButtonsResponse  `json:"buttonsResponseMessage,omitempty"`
	ListResponseMessage    *ListResponse     `json:"listResponseMessage,omitempty"`
}

// Text is a plain text message.
type Text struct {
	Message string `json:"message"`
}

// Image is an inbound image hosted by Z-API.
type Image struct {
	ImageURL string `json:"imageUrl"`
	MimeType string `json:"mimeType"`
	Caption  string `json:"caption"`
}

// Audio is an inbound audio or voice note.
type Audio struct {
	AudioURL string `json:"audioUrl"`
	MimeType string `json:"mimeType"`
	PTT      bool   `json:"ptt"`
	Seconds  int    `json:"seconds"`
}

// Video is an inbound video.
type Video struct {
	VideoURL string `json:"videoUrl"`
	MimeType string `json:"mimeType"`
	Caption  string `json:"caption"`
}

// Document is an inbound file.
type Document struct {
	DocumentURL string `json:"documentUrl"`
	MimeType    string `json:"mimeType"`
	FileName    string `json:"fileName"`
	Title       string `json:"title"`
	Caption     string `json:"caption"`
}

// Sticker is an inbound sticker.
type Sticker struct {
	StickerURL string `json:"stickerUrl"`
	MimeType   string `json:"mimeType"`
}

// ButtonsResponse is a tap on a button message.
type ButtonsResponse struct {
	ButtonID string `json:"buttonId"`
	Message  string `json:"message"`
}

// ListResponse is a pick from an option list.
type ListResponse struct {
	Message       string `json:"message"`
	Title         string `json:"title"`
	SelectedRowID string `json:"selectedRowId"`
}

// SendTextRequest is the body of /send-text.
type SendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendAudioRequest is the body of /send-audio.
type SendAudioRequest struct {
	Phone    string `json:"phone"`
	Audio    string `json:"audio"`
	Waveform bool   `json:"waveform"`
}

// SendResponse is returned by the send endpoints.
type SendResponse struct {
	ZaapID    string `json:"zaapId"`
	MessageID string `json:"messageId"`
	ID        string `json:"id"`
}
