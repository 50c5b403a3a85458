package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/wolfman30/leadflow/internal/agents"
	"github.com/wolfman30/leadflow/internal/channels"
	"github.com/wolfman30/leadflow/internal/leads"
)

// fakeProvider records every capability call made against it.
type fakeProvider struct {
	name string

	mu          sync.Mutex
	calls       []string
	requests    []CompletionRequest
	completions []CompletionResponse
	completeErr error
	transcript  string
	description string
	speech      *Speech
	embedding   func(text string) []float32
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{
		name:        name,
		completions: []CompletionResponse{{Text: "Hi! How can I help?", Model: name + "-chat"}},
		transcript:  "I would like to book a visit",
		description: "a photo of a broken phone screen",
		speech:      &Speech{Data: []byte("OggS-voice"), MimeType: "audio/ogg"},
		embedding:   func(string) []float32 { return []float32{1, 0} },
	}
}

func (f *fakeProvider) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	f.record("complete")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	idx := len(f.requests) - 1
	if idx >= len(f.completions) {
		idx = len(f.completions) - 1
	}
	resp := f.completions[idx]
	return &resp, nil
}

func (f *fakeProvider) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error) {
	f.record("transcribe")
	return f.transcript, nil
}

func (f *fakeProvider) DescribeImage(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	f.record("describe_image")
	return f.description, nil
}

func (f *fakeProvider) Synthesize(ctx context.Context, text, language string) (*Speech, error) {
	f.record("synthesize")
	return f.speech, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.record("embed")
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.embedding(t)
	}
	return out, nil
}

type sentMessage struct {
	to       string
	text     string
	audio    []byte
	mimeType string
	creds    channels.Credentials
}

// fakeChannel is a Sender and MediaFetcher for one provider.
type fakeChannel struct {
	provider channels.Provider

	mu      sync.Mutex
	sent    []sentMessage
	fetched []channels.MediaRef
	sendErr error
	media   *channels.Media
	// audioTypes limits the audio the channel delivers; nil accepts all.
	audioTypes []string
}

func (c *fakeChannel) AcceptsAudio(mimeType string) bool {
	if c.audioTypes == nil {
		return true
	}
	for _, t := range c.audioTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

func (c *fakeChannel) Provider() channels.Provider { return c.provider }

func (c *fakeChannel) Normalize(raw []byte) ([]channels.InboundEvent, error) { return nil, nil }

func (c *fakeChannel) SendText(ctx context.Context, creds channels.Credentials, to, text string) (*channels.SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	c.sent = append(c.sent, sentMessage{to: to, text: text, creds: creds})
	return &channels.SendResult{MessageID: "out-1"}, nil
}

func (c *fakeChannel) SendAudio(ctx context.Context, creds channels.Credentials, to string, audio []byte, mimeType string) (*channels.SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	c.sent = append(c.sent, sentMessage{to: to, audio: audio, mimeType: mimeType, creds: creds})
	return &channels.SendResult{MessageID: "out-1"}, nil
}

func (c *fakeChannel) FetchMedia(ctx context.Context, creds channels.Credentials, ref channels.MediaRef, maxBytes int64) (*channels.Media, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetched = append(c.fetched, ref)
	if c.media == nil {
		return nil, errors.New("no media")
	}
	return c.media, nil
}

func (c *fakeChannel) Sent() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

// harness wires a full in-memory pipeline.
type harness struct {
	agents   *agents.InMemoryRepository
	leads    *leads.InMemoryRepository
	store    *MemoryStore
	channel  *fakeChannel
	openai   *fakeProvider
	gemini   *fakeProvider
	kb       *KnowledgeBase
	pipeline *Pipeline
	agent    agents.Agent
}

func newHarness(t interface{ Fatalf(string, ...any) }, mutate func(*agents.Agent)) *harness {
	h := &harness{
		agents:  agents.NewInMemoryRepository(),
		leads:   leads.NewInMemoryRepository(),
		store:   NewMemoryStore(),
		channel: &fakeChannel{provider: channels.ProviderZAPI},
		openai:  newFakeProvider(ProviderOpenAI),
		gemini:  newFakeProvider(ProviderGemini),
		kb:      NewKnowledgeBase(NewMemoryKnowledgeStore(), 3, nil),
	}
	h.agent = agents.Agent{
		ID:          "agent-1",
		OrgID:       "org-1",
		Name:        "Bia",
		VoicePolicy: agents.VoiceNever,
		Language:    "pt-BR",
		Active:      true,
	}
	if mutate != nil {
		mutate(&h.agent)
	}
	h.agents.PutAgent(h.agent)
	h.agents.PutIntegration(agents.Integration{
		ID:             "int-1",
		AgentID:        "agent-1",
		OrgID:          "org-1",
		Provider:       string(channels.ProviderZAPI),
		CorrelationKey: "instance-1",
		Metadata:       map[string]string{"instance_id": "instance-1", "token": "tok"},
	})

	registry := channels.NewRegistry()
	registry.Register(channels.Channel{Codec: h.channel, Sender: h.channel, Fetcher: h.channel})

	providers, err := NewProviderSet(ProviderOpenAI, h.openai, h.gemini)
	if err != nil {
		t.Fatalf("provider set: %v", err)
	}
	orch, err := NewOrchestrator(OrchestratorConfig{
		Providers: providers,
		History:   NewHistoryBuilder(h.store, nil, 20, 2000, nil),
		Knowledge: h.kb,
		Leads:     h.leads,
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	resolver := NewResolver(h.agents, h.leads, h.store, "new", nil)
	dispatcher := NewDispatcher(h.store, registry, nil, nil)
	h.pipeline = NewPipeline(resolver, orch, dispatcher, registry, nil, nil)
	return h
}

func textEvent(id, phone, text string) channels.InboundEvent {
	return channels.InboundEvent{
		Provider:       channels.ProviderZAPI,
		CorrelationKey: "instance-1",
		CustomerID:     phone,
		CustomerName:   "Ana",
		MessageID:      id,
		Kind:           channels.KindText,
		Text:           text,
		Timestamp:      1700000000000,
	}
}
