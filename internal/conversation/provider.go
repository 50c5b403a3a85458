package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ChatRole represents the role of a chat message.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleTool      ChatRole = "tool"
)

// ChatMessage is a provider-neutral chat turn.
type ChatMessage struct {
	Role       ChatRole
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	// Name is the tool name on tool result messages.
	Name string
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolParameter describes one string argument of a tool.
type ToolParameter struct {
	Name        string
	Description string
	Required    bool
}

// ToolDefinition describes a function the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	System   string
	Messages []ChatMessage
	Tools    []ToolDefinition
}

// TokenUsage captures token accounting returned by providers.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// CompletionResponse is the assistant turn returned by a provider.
type CompletionResponse struct {
	Text         string
	ToolCalls    []ToolCall
	Model        string
	FinishReason string
	Usage        TokenUsage
}

// Speech is synthesized audio.
type Speech struct {
	Data     []byte
	MimeType string
}

// ModelProvider is one model family. Every sub-step of a reply goes through
// the same provider.
type ModelProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error)
	DescribeImage(ctx context.Context, image []byte, mimeType, instruction string) (string, error)
	Synthesize(ctx context.Context, text, language string) (*Speech, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ProviderSet holds the configured providers and the organization default.
type ProviderSet struct {
	defaultName string
	providers   map[string]ModelProvider
}

// NewProviderSet registers providers by name. The default must be one of them.
func NewProviderSet(defaultName string, providers ...ModelProvider) (*ProviderSet, error) {
	set := &ProviderSet{
		defaultName: normalizeProviderName(defaultName),
		providers:   make(map[string]ModelProvider, len(providers)),
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		set.providers[normalizeProviderName(p.Name())] = p
	}
	if _, ok := set.providers[set.defaultName]; !ok {
		return nil, fmt.Errorf("conversation: default model provider %q not configured (have %s)", defaultName, strings.Join(set.Names(), ","))
	}
	return set, nil
}

// Select returns the agent's preferred provider, or the default when the
// preference is empty.
func (s *ProviderSet) Select(preference string) (ModelProvider, error) {
	name := normalizeProviderName(preference)
	if name == "" {
		name = s.defaultName
	}
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("conversation: model provider %q not configured", preference)
	}
	return p, nil
}

// Names lists the registered providers.
func (s *ProviderSet) Names() []string {
	out := make([]string, 0, len(s.providers))
	for name := range s.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
