package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrationNotFound is returned when no integration matches the event's correlation key.
	ErrIntegrationNotFound = errors.New("conversation: integration not found")

	// ErrAgentUnavailable is returned when the integration's agent is missing or inactive.
	ErrAgentUnavailable = errors.New("conversation: agent unavailable")
)

// AgentExecutionError wraps any model provider failure while producing a reply.
type AgentExecutionError struct {
	Provider string
	Stage    string
	Err      error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("conversation: agent execution failed (provider=%s stage=%s): %v", e.Provider, e.Stage, e.Err)
}

func (e *AgentExecutionError) Unwrap() error { return e.Err }

func executionError(provider, stage string, err error) error {
	return &AgentExecutionError{Provider: provider, Stage: stage, Err: err}
}

// DispatchError wraps an outbound delivery failure.
type DispatchError struct {
	Channel string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("conversation: dispatch via %s failed: %v", e.Channel, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
