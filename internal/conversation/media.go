package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/leadflow/internal/channels"
)

const (
	imageInstruction = "Describe the image in detail, including any visible text, products, people and context, so an assistant can answer the customer who sent it."

	// unsupportedMediaReply is sent as-is for media the agent cannot read.
	unsupportedMediaReply = "Sorry, I can't open videos or documents here yet. Could you describe what you sent in a message?"
)

// Metadata keys for text derived from inbound media. They are recorded on the
// inbound message so later turns can replay what the customer sent.
const (
	MetadataTranscript       = "transcript"
	MetadataImageDescription = "image_description"
)

// turnInput is the text the model sees for the current turn.
type turnInput struct {
	text        string
	derived     bool
	unsupported bool
	// derivedKey and derivedValue are persisted on the inbound message.
	derivedKey   string
	derivedValue string
}

// mediaProcessor turns inbound media into text using the turn's provider.
type mediaProcessor struct {
	maxBytes int64
}

// unsupportedKind reports media kinds answered with a fixed reply and no model call.
func unsupportedKind(kind channels.MessageKind) bool {
	return kind == channels.KindVideo || kind == channels.KindDocument
}

func (m *mediaProcessor) prepare(ctx context.Context, provider ModelProvider, fetcher channels.MediaFetcher, creds channels.Credentials, evt *channels.InboundEvent, language string) (turnInput, string, error) {
	switch evt.Kind {
	case channels.KindText, "":
		return turnInput{text: evt.Text}, "", nil
	case channels.KindVideo, channels.KindDocument:
		return turnInput{text: evt.Text, unsupported: true}, "", nil
	}

	if evt.Media == nil {
		return turnInput{text: evt.Text}, "", nil
	}
	if fetcher == nil {
		return turnInput{}, "fetch_media", fmt.Errorf("conversation: no media fetcher for %s", evt.Provider)
	}
	media, err := fetcher.FetchMedia(ctx, creds, *evt.Media, m.maxBytes)
	if err != nil {
		return turnInput{}, "fetch_media", err
	}
	mimeType := media.MimeType
	if mimeType == "" {
		mimeType = evt.Media.MimeType
	}

	switch evt.Kind {
	case channels.KindImage:
		description, err := provider.DescribeImage(ctx, media.Data, mimeType, imageInstruction)
		if err != nil {
			return turnInput{}, "describe_image", err
		}
		caption := evt.Media.Caption
		if caption == "" {
			caption = evt.Text
		}
		return turnInput{
			text:         imageTurnText(description, caption),
			derived:      true,
			derivedKey:   MetadataImageDescription,
			derivedValue: description,
		}, "", nil
	case channels.KindAudio:
		transcript, err := provider.Transcribe(ctx, media.Data, mimeType, language)
		if err != nil {
			return turnInput{}, "transcribe", err
		}
		return turnInput{
			text:         transcript,
			derived:      true,
			derivedKey:   MetadataTranscript,
			derivedValue: transcript,
		}, "", nil
	default:
		return turnInput{text: evt.Text}, "", nil
	}
}

func imageTurnText(description, caption string) string {
	text := "[The customer sent an image. Description: " + description + "]"
	if caption = strings.TrimSpace(caption); caption != "" {
		text += "\n" + caption
	}
	return text
}

// historyText is the text a stored message contributes to model history.
// Voice notes and images fall back to the derived text recorded for them.
func historyText(m Message) string {
	if m.Sender != SenderHuman {
		return m.Content
	}
	if description, _ := m.Metadata[MetadataImageDescription].(string); description != "" {
		return imageTurnText(description, m.Content)
	}
	if strings.TrimSpace(m.Content) == "" {
		if transcript, _ := m.Metadata[MetadataTranscript].(string); transcript != "" {
			return transcript
		}
	}
	return m.Content
}

// transcriptionPrompt biases speech recognition toward the agent language.
func transcriptionPrompt(language string) string {
	if strings.TrimSpace(language) == "" {
		return "Transcribe this WhatsApp voice note verbatim."
	}
	return fmt.Sprintf("Transcribe this WhatsApp voice note verbatim. The speaker most likely talks in %s.", language)
}

// isoLanguage reduces a tag like "pt-BR" to its ISO-639-1 code.
func isoLanguage(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if len(lang) != 2 {
		return ""
	}
	return lang
}
