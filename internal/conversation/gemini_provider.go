package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ProviderGemini is the Google Gemini model family.
const ProviderGemini = "gemini"

// geminiAPI is the slice of the Gemini SDK the provider uses.
type geminiAPI interface {
	Generate(ctx context.Context, model string, system *genai.Content, tools []*genai.Tool, history []*genai.Content, parts ...genai.Part) (*genai.GenerateContentResponse, error)
	EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error)
}

type sdkGemini struct {
	client *genai.Client
}

func (s *sdkGemini) Generate(ctx context.Context, model string, system *genai.Content, tools []*genai.Tool, history []*genai.Content, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	m := s.client.GenerativeModel(model)
	m.SystemInstruction = system
	m.Tools = tools
	cs := m.StartChat()
	cs.History = history
	return cs.SendMessage(ctx, parts...)
}

func (s *sdkGemini) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	em := s.client.EmbeddingModel(model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if e == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, e.Values)
	}
	return out, nil
}

// GeminiConfig names the models used for each capability.
type GeminiConfig struct {
	APIKey         string
	ChatModel      string
	TTSModel       string
	TTSVoice       string
	EmbeddingModel string
	// APIBase overrides the endpoint used for speech.
	APIBase    string
	HTTPClient *http.Client
}

// GeminiProvider implements ModelProvider on Google's Gemini API.
type GeminiProvider struct {
	api    geminiAPI
	client *genai.Client
	cfg    GeminiConfig
	speech *geminiSpeech
}

// NewGeminiProvider creates a Gemini provider from an API key.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}
	speech, err := newGeminiSpeech(ctx, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	p := newGeminiProvider(&sdkGemini{client: client}, cfg)
	p.client = client
	p.speech = speech
	return p, nil
}

func newGeminiProvider(api geminiAPI, cfg GeminiConfig) *GeminiProvider {
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gemini-2.5-flash"
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = "gemini-2.5-flash-preview-tts"
	}
	if cfg.TTSVoice == "" {
		cfg.TTSVoice = "Kore"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-004"
	}
	return &GeminiProvider{api: api, cfg: cfg}
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

// Close releases resources held by the Gemini client.
func (p *GeminiProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	contents := toGeminiContents(req.Messages)
	if len(contents) == 0 {
		return nil, errors.New("conversation: gemini requires at least one message")
	}
	var system *genai.Content
	if strings.TrimSpace(req.System) != "" {
		system = genai.NewUserContent(genai.Text(req.System))
	}
	last := contents[len(contents)-1]
	resp, err := p.api.Generate(ctx, p.cfg.ChatModel, system, toGeminiTools(req.Tools), contents[:len(contents)-1], last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("conversation: gemini completion failed: %w", err)
	}
	candidate, err := firstCandidate(resp)
	if err != nil {
		return nil, err
	}

	out := &CompletionResponse{
		Model:        p.cfg.ChatModel,
		FinishReason: candidate.FinishReason.String(),
	}
	var text strings.Builder
	for i, part := range candidate.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			args, err := json.Marshal(v.Args)
			if err != nil {
				return nil, fmt.Errorf("conversation: encode gemini tool args: %w", err)
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("%s-%d", v.Name, i),
				Name:      v.Name,
				Arguments: string(args),
			})
		}
	}
	out.Text = strings.TrimSpace(text.String())
	if resp.UsageMetadata != nil {
		out.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}

func (p *GeminiProvider) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error) {
	if mimeType == "" {
		mimeType = "audio/ogg"
	}
	resp, err := p.api.Generate(ctx, p.cfg.ChatModel, nil, nil, nil,
		genai.Text(transcriptionPrompt(language)),
		genai.Blob{MIMEType: baseMime(mimeType), Data: audio},
	)
	if err != nil {
		return "", fmt.Errorf("conversation: gemini transcription failed: %w", err)
	}
	return candidateText(resp)
}

func (p *GeminiProvider) DescribeImage(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	resp, err := p.api.Generate(ctx, p.cfg.ChatModel, nil, nil, nil,
		genai.Text(instruction),
		genai.Blob{MIMEType: baseMime(mimeType), Data: image},
	)
	if err != nil {
		return "", fmt.Errorf("conversation: gemini vision failed: %w", err)
	}
	return candidateText(resp)
}

func (p *GeminiProvider) Synthesize(ctx context.Context, text, language string) (*Speech, error) {
	if p.speech == nil {
		return nil, errors.New("conversation: gemini speech is not configured")
	}
	return p.speech.synthesize(ctx, p.cfg.TTSModel, p.cfg.TTSVoice, text)
}

func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := p.api.EmbedBatch(ctx, p.cfg.EmbeddingModel, texts)
	if err != nil {
		return nil, fmt.Errorf("conversation: gemini embeddings failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("conversation: gemini returned %d embeddings for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}

// toGeminiContents maps chat turns to Gemini contents, merging consecutive
// turns with the same role since Gemini expects alternation.
func toGeminiContents(messages []ChatMessage) []*genai.Content {
	var out []*genai.Content
	for _, m := range messages {
		var (
			role  string
			parts []genai.Part
		)
		switch m.Role {
		case ChatRoleSystem:
			continue
		case ChatRoleAssistant:
			role = "model"
			if strings.TrimSpace(m.Content) != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				_ = json.Unmarshal([]byte(tc.Arguments), &args)
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
		case ChatRoleTool:
			role = "user"
			parts = append(parts, genai.FunctionResponse{Name: m.Name, Response: map[string]any{"result": m.Content}})
		default:
			role = "user"
			if strings.TrimSpace(m.Content) != "" {
				parts = append(parts, genai.Text(m.Content))
			}
		}
		if len(parts) == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out
}

func toGeminiTools(defs []ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		schema := &genai.Schema{Type: genai.TypeObject, Properties: make(map[string]*genai.Schema, len(def.Parameters))}
		for _, p := range def.Parameters {
			schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{Name: def.Name, Description: def.Description, Parameters: schema})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func firstCandidate(resp *genai.GenerateContentResponse) (*genai.Candidate, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, errors.New("conversation: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, errors.New("conversation: gemini returned empty content")
	}
	return candidate, nil
}

func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	candidate, err := firstCandidate(resp)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func baseMime(mimeType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
}
