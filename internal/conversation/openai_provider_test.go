package conversation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOpenAI struct {
	chatResp    openai.ChatCompletionResponse
	chatErr     error
	chatReqs    []openai.ChatCompletionRequest
	audioReq    openai.AudioRequest
	audioBody   []byte
	speechReq   openai.CreateSpeechRequest
	embedReq    *openai.EmbeddingRequest
	embedResp   openai.EmbeddingResponse
	speechBytes []byte
}

func (s *stubOpenAI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.chatReqs = append(s.chatReqs, req)
	return s.chatResp, s.chatErr
}

func (s *stubOpenAI) CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	s.audioReq = req
	s.audioBody, _ = io.ReadAll(req.Reader)
	return openai.AudioResponse{Text: " olá, quero marcar "}, nil
}

func (s *stubOpenAI) CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error) {
	s.speechReq = req
	return openai.RawResponse{ReadCloser: io.NopCloser(bytes.NewReader(s.speechBytes))}, nil
}

func (s *stubOpenAI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	s.embedReq, _ = conv.(*openai.EmbeddingRequest)
	return s.embedResp, nil
}

func TestOpenAICompleteMapsMessagesAndTools(t *testing.T) {
	stub := &stubOpenAI{chatResp: openai.ChatCompletionResponse{
		Model: "gpt-4o-mini-2024",
		Choices: []openai.ChatCompletionChoice{{
			FinishReason: openai.FinishReasonToolCalls,
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ToolCall{{ID: "call-1", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: toolSaveTaxID, Arguments: `{"tax_id":"1"}`}}},
			},
		}},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
	}}
	p := NewOpenAIProvider(stub, OpenAIConfig{})

	resp, err := p.Complete(context.Background(), CompletionRequest{
		System: "be nice",
		Messages: []ChatMessage{
			{Role: ChatRoleUser, Content: "hi"},
			{Role: ChatRoleAssistant, ToolCalls: []ToolCall{{ID: "c0", Name: "x", Arguments: "{}"}}},
			{Role: ChatRoleTool, Content: "saved", ToolCallID: "c0", Name: "x"},
		},
		Tools: []ToolDefinition{saveTaxIDTool},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini-2024", resp.Model)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, []ToolCall{{ID: "call-1", Name: toolSaveTaxID, Arguments: `{"tax_id":"1"}`}}, resp.ToolCalls)
	assert.Equal(t, int32(12), resp.Usage.TotalTokens)

	req := stub.chatReqs[0]
	assert.Equal(t, openai.GPT4oMini, req.Model)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, "c0", req.Messages[2].ToolCalls[0].ID)
	assert.Equal(t, openai.ChatMessageRoleTool, req.Messages[3].Role)
	assert.Equal(t, "c0", req.Messages[3].ToolCallID)

	require.Len(t, req.Tools, 1)
	params, ok := req.Tools[0].Function.Parameters.(jsonschema.Definition)
	require.True(t, ok)
	assert.Equal(t, jsonschema.Object, params.Type)
	assert.Equal(t, []string{"tax_id"}, params.Required)
}

func TestOpenAICompleteErrors(t *testing.T) {
	p := NewOpenAIProvider(&stubOpenAI{chatErr: errors.New("429")}, OpenAIConfig{})
	_, err := p.Complete(context.Background(), CompletionRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
	assert.ErrorContains(t, err, "429")

	p = NewOpenAIProvider(&stubOpenAI{}, OpenAIConfig{})
	_, err = p.Complete(context.Background(), CompletionRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}}})
	assert.ErrorContains(t, err, "no choices")
}

func TestOpenAITranscribeUsesLanguageHint(t *testing.T) {
	stub := &stubOpenAI{}
	p := NewOpenAIProvider(stub, OpenAIConfig{})

	text, err := p.Transcribe(context.Background(), []byte("ogg"), "audio/ogg; codecs=opus", "pt-BR")
	require.NoError(t, err)
	assert.Equal(t, "olá, quero marcar", text)
	assert.Equal(t, openai.Whisper1, stub.audioReq.Model)
	assert.Equal(t, "pt", stub.audioReq.Language)
	assert.Equal(t, "voice.ogg", stub.audioReq.FilePath)
	assert.Contains(t, stub.audioReq.Prompt, "pt-BR")
	assert.Equal(t, []byte("ogg"), stub.audioBody)
}

func TestOpenAIDescribeImageSendsDataURL(t *testing.T) {
	stub := &stubOpenAI{chatResp: openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "a cat"}}}}}
	p := NewOpenAIProvider(stub, OpenAIConfig{})

	got, err := p.DescribeImage(context.Background(), []byte{0xff, 0xd8}, "image/jpeg", imageInstruction)
	require.NoError(t, err)
	assert.Equal(t, "a cat", got)

	parts := stub.chatReqs[0].Messages[0].MultiContent
	require.Len(t, parts, 2)
	assert.Equal(t, imageInstruction, parts[0].Text)
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,"))
}

func TestOpenAISynthesizeReturnsOgg(t *testing.T) {
	stub := &stubOpenAI{speechBytes: []byte("OggS")}
	p := NewOpenAIProvider(stub, OpenAIConfig{TTSVoice: "nova"})

	speech, err := p.Synthesize(context.Background(), "Olá", "pt-BR")
	require.NoError(t, err)
	assert.Equal(t, "audio/ogg", speech.MimeType)
	assert.Equal(t, []byte("OggS"), speech.Data)
	assert.Equal(t, openai.SpeechResponseFormatOpus, stub.speechReq.ResponseFormat)
	assert.Equal(t, openai.SpeechVoice("nova"), stub.speechReq.Voice)

	_, err = NewOpenAIProvider(&stubOpenAI{}, OpenAIConfig{}).Synthesize(context.Background(), "x", "")
	assert.Error(t, err, "empty audio is an error")
}

func TestOpenAIEmbedOrdersByIndex(t *testing.T) {
	stub := &stubOpenAI{embedResp: openai.EmbeddingResponse{Data: []openai.Embedding{
		{Index: 1, Embedding: []float32{2}},
		{Index: 0, Embedding: []float32{1}},
	}}}
	p := NewOpenAIProvider(stub, OpenAIConfig{EmbeddingModel: "text-embedding-3-large"})

	got, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, got)
	require.NotNil(t, stub.embedReq)
	assert.Equal(t, openai.EmbeddingModel("text-embedding-3-large"), stub.embedReq.Model)
}

func TestAudioExtension(t *testing.T) {
	assert.Equal(t, ".mp3", audioExtension("audio/mpeg"))
	assert.Equal(t, ".m4a", audioExtension("audio/mp4"))
	assert.Equal(t, ".ogg", audioExtension("audio/ogg; codecs=opus"))
	assert.Equal(t, ".ogg", audioExtension(""))
}
