// Package agents holds the read-only agent configuration and the channel
// integrations that bind an agent to a WhatsApp number or instance.
package agents

import "strings"

// VoicePolicy controls when replies are synthesized to speech.
type VoicePolicy string

const (
	VoiceNever   VoicePolicy = "never"
	VoiceOnAudio VoicePolicy = "on_audio"
	VoiceAlways  VoicePolicy = "always"
)

// Agent is the configuration for an automated responder.
type Agent struct {
	ID            string      `json:"id"`
	OrgID         string      `json:"org_id"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	Instructions  string      `json:"instructions"`
	Greeting      string      `json:"greeting"`
	Tone          string      `json:"tone"`
	WorkingHours  string      `json:"working_hours"`
	VoicePolicy   VoicePolicy `json:"voice_policy"`
	ModelProvider string      `json:"model_provider"`
	Language      string      `json:"language"`
	Active        bool        `json:"active"`
}

// RepliesWithVoice reports whether a reply to a turn of the given modality
// should be spoken. Speech is only produced in answer to an audio turn.
func (a *Agent) RepliesWithVoice(inboundAudio bool) bool {
	if a == nil || !inboundAudio {
		return false
	}
	switch VoicePolicy(strings.ToLower(string(a.VoicePolicy))) {
	case VoiceOnAudio, VoiceAlways:
		return true
	default:
		return false
	}
}

// Integration binds one agent to one channel instance for an organization.
// Metadata carries the channel credentials (tokens, phone number id,
// instance id, base URL).
type Integration struct {
	ID             string            `json:"id"`
	AgentID        string            `json:"agent_id"`
	OrgID          string            `json:"org_id"`
	Provider       string            `json:"provider"`
	CorrelationKey string            `json:"correlation_key"`
	Metadata       map[string]string `json:"metadata"`
}
