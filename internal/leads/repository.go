package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	// Ensure returns the lead for (org, phone), creating it when absent.
	// The bool reports whether this call created the row.
	Ensure(ctx context.Context, req EnsureRequest) (*Lead, bool, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	SetTaxID(ctx context.Context, id, taxID string) error
	// DefaultStatus returns the first pipeline column of the org, or "" when
	// the org has not configured any.
	DefaultStatus(ctx context.Context, orgID string) (string, error)
}

type leadKey struct {
	orgID string
	phone string
}

type column struct {
	name     string
	position int
}

// InMemoryRepository keeps leads in memory with the same (org, phone)
// uniqueness the database enforces.
type InMemoryRepository struct {
	mu      sync.RWMutex
	leads   map[string]*Lead
	byPhone map[leadKey]string
	columns map[string][]column
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:   make(map[string]*Lead),
		byPhone: make(map[leadKey]string),
		columns: make(map[string][]column),
	}
}

// AddColumn registers a pipeline column for an org.
func (r *InMemoryRepository) AddColumn(orgID, name string, position int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.columns[orgID] = append(r.columns[orgID], column{name: name, position: position})
}

// Ensure finds or creates the lead atomically.
func (r *InMemoryRepository) Ensure(ctx context.Context, req EnsureRequest) (*Lead, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	key := leadKey{orgID: req.OrgID, phone: req.Phone}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byPhone[key]; ok {
		clone := *r.leads[id]
		return &clone, false, nil
	}
	now := time.Now().UTC()
	lead := &Lead{
		ID:        uuid.New().String(),
		OrgID:     req.OrgID,
		Phone:     req.Phone,
		Name:      req.Name,
		Status:    req.Status,
		Source:    req.Source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.leads[lead.ID] = lead
	r.byPhone[key] = lead.ID
	clone := *lead
	return &clone, true, nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	clone := *lead
	return &clone, nil
}

// SetTaxID stores the customer's tax id.
func (r *InMemoryRepository) SetTaxID(ctx context.Context, id, taxID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return ErrLeadNotFound
	}
	lead.TaxID = taxID
	lead.UpdatedAt = time.Now().UTC()
	return nil
}

// DefaultStatus returns the lowest-positioned column name.
func (r *InMemoryRepository) DefaultStatus(ctx context.Context, orgID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cols := append([]column(nil), r.columns[orgID]...)
	if len(cols) == 0 {
		return "", nil
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].position < cols[j].position })
	return cols[0].name, nil
}

// Count returns the number of stored leads.
func (r *InMemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.leads)
}
