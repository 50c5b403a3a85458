package leads

import "errors"

var (
	// ErrMissingOrgID is returned when a lead request has no organization.
	ErrMissingOrgID = errors.New("org_id is required")

	// ErrInvalidPhone is returned when the phone is empty or not digits only
	ErrInvalidPhone = errors.New("phone must be digits only")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")
)
