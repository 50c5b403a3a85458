package conversation

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	gensdk "google.golang.org/genai"
)

// geminiSpeech synthesizes replies through the Gemini API's audio output
// modality. The chat SDK has no speech config, so speech uses the unified
// google.golang.org/genai client.
type geminiSpeech struct {
	client *gensdk.Client
}

func newGeminiSpeech(ctx context.Context, cfg GeminiConfig) (*geminiSpeech, error) {
	cc := &gensdk.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    gensdk.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.APIBase != "" {
		cc.HTTPOptions = gensdk.HTTPOptions{BaseURL: cfg.APIBase}
	}
	client, err := gensdk.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini speech client: %w", err)
	}
	return &geminiSpeech{client: client}, nil
}

func (s *geminiSpeech) synthesize(ctx context.Context, model, voice, text string) (*Speech, error) {
	resp, err := s.client.Models.GenerateContent(ctx, model, gensdk.Text(text), &gensdk.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &gensdk.SpeechConfig{
			VoiceConfig: &gensdk.VoiceConfig{
				PrebuiltVoiceConfig: &gensdk.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: gemini speech failed: %w", err)
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			pcm := part.InlineData.Data
			return &Speech{Data: wavFromPCM(pcm, pcmRate(part.InlineData.MIMEType)), MimeType: "audio/wav"}, nil
		}
	}
	return nil, errors.New("conversation: gemini speech returned no audio")
}

// pcmRate reads the sample rate from a mime type like "audio/L16;codec=pcm;rate=24000".
func pcmRate(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(k, "rate") {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
	}
	return 24000
}

// wavFromPCM wraps 16-bit mono little-endian PCM in a RIFF header.
func wavFromPCM(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
