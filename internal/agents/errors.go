package agents

import "errors"

var (
	// ErrIntegrationNotFound is returned when no integration matches a correlation key.
	ErrIntegrationNotFound = errors.New("integration not found")

	// ErrAgentNotFound is returned when an agent id does not exist.
	ErrAgentNotFound = errors.New("agent not found")
)
