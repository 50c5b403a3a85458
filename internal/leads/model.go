package leads

import (
	"strings"
	"time"
)

// Lead is a CRM record for one customer of an organization, keyed by phone.
type Lead struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	Value     float64   `json:"value"`
	TaxID     string    `json:"tax_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnsureRequest describes the lead to find or create for an inbound message.
type EnsureRequest struct {
	OrgID  string
	Phone  string
	Name   string
	Source string
	Status string
}

// Validate validates the ensure request. Phone must already be digits only.
func (r EnsureRequest) Validate() error {
	if strings.TrimSpace(r.OrgID) == "" {
		return ErrMissingOrgID
	}
	if r.Phone == "" {
		return ErrInvalidPhone
	}
	for _, c := range r.Phone {
		if c < '0' || c > '9' {
			return ErrInvalidPhone
		}
	}
	return nil
}
