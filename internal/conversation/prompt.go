package conversation

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/wolfman30/leadflow/internal/agents"
)

const defaultSystemTemplate = `You are {{.Name}}, a WhatsApp assistant{{with .Description}}: {{.}}{{end}}.
{{- with .Tone}}
Tone: {{.}}.{{end}}
{{- with .Greeting}}
When a customer writes for the first time, greet them with: "{{.}}"{{end}}
{{- with .WorkingHours}}
Working hours: {{.}}. Outside these hours, tell the customer a team member will follow up.{{end}}
{{- with .Language}}
Always answer in {{.}}.{{end}}
{{- if .SpeaksReplies}}
Replies to voice notes are read aloud, so avoid lists, links and formatting.{{end}}
Keep replies short and conversational. Never invent prices, dates or policies.
If the customer shares a CPF or CNPJ, call save_customer_tax_id with it.
{{- with .CustomerName}}
The customer's WhatsApp name is {{.}}.{{end}}
{{- with .Instructions}}

Instructions:
{{.}}{{end}}
{{- if .Knowledge}}

Relevant knowledge:
{{range .Knowledge}}- {{.}}
{{end}}{{end}}
{{- with .Summary}}

Summary of the earlier conversation:
{{.}}{{end}}`

// PromptData is the input of the system prompt template.
type PromptData struct {
	Name          string
	Description   string
	Instructions  string
	Greeting      string
	Tone          string
	WorkingHours  string
	VoicePolicy   string
	SpeaksReplies bool
	Language      string
	CustomerName  string
	Knowledge     []string
	Summary       string
}

// PromptBuilder renders the agent system prompt.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses text, or the default template when text is empty.
func NewPromptBuilder(text string) (*PromptBuilder, error) {
	if strings.TrimSpace(text) == "" {
		text = defaultSystemTemplate
	}
	tmpl, err := template.New("system").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("conversation: parse prompt template: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// Build renders the system prompt for one turn.
func (b *PromptBuilder) Build(agent *agents.Agent, data PromptData) (string, error) {
	if agent != nil {
		data.Name = agent.Name
		data.Description = agent.Description
		data.Instructions = strings.TrimSpace(agent.Instructions)
		data.Greeting = agent.Greeting
		data.Tone = agent.Tone
		data.WorkingHours = agent.WorkingHours
		data.VoicePolicy = string(agent.VoicePolicy)
		data.SpeaksReplies = agent.VoicePolicy == agents.VoiceOnAudio || agent.VoicePolicy == agents.VoiceAlways
		data.Language = agent.Language
	}
	if data.Name == "" {
		data.Name = "the assistant"
	}
	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("conversation: render prompt: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}
