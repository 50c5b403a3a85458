package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/leadflow/internal/store"
)

var leadsTable = store.Table{
	Name:    "leads",
	Columns: []string{"id", "org_id", "phone", "name", "status", "source", "value", "tax_id", "created_at", "updated_at"},
}

var columnsTable = store.Table{
	Name:    "lead_columns",
	Columns: []string{"name"},
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db store.Querier
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(db store.Querier) *PostgresRepository {
	if db == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

// Ensure inserts the lead ignoring a (org_id, phone) conflict, then reads
// back whichever row won.
func (r *PostgresRepository) Ensure(ctx context.Context, req EnsureRequest) (*Lead, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	now := time.Now().UTC()
	inserted, err := store.Upsert(ctx, r.db, leadsTable.Name, store.Record{
		"id":         uuid.New().String(),
		"org_id":     req.OrgID,
		"phone":      req.Phone,
		"name":       req.Name,
		"status":     req.Status,
		"source":     req.Source,
		"value":      0.0,
		"tax_id":     "",
		"created_at": now,
		"updated_at": now,
	}, "org_id", "phone")
	if err != nil {
		return nil, false, fmt.Errorf("leads: insert failed: %w", err)
	}
	lead, err := scanLead(store.FirstByFilter(ctx, r.db, leadsTable, store.Filter{"org_id": req.OrgID, "phone": req.Phone}))
	if err != nil {
		return nil, false, err
	}
	return lead, inserted, nil
}

// GetByID fetches a lead by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	return scanLead(store.GetByID(ctx, r.db, leadsTable, id))
}

// SetTaxID stores the customer's tax id on the lead.
func (r *PostgresRepository) SetTaxID(ctx context.Context, id, taxID string) error {
	n, err := store.Update(ctx, r.db, leadsTable.Name,
		store.Record{"tax_id": taxID, "updated_at": time.Now().UTC()},
		store.Filter{"id": id})
	if err != nil {
		return fmt.Errorf("leads: update tax id: %w", err)
	}
	if n == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// DefaultStatus returns the name of the org's first pipeline column.
func (r *PostgresRepository) DefaultStatus(ctx context.Context, orgID string) (string, error) {
	var name string
	err := store.FirstByFilter(ctx, r.db, columnsTable, store.Filter{"org_id": orgID}, store.OrderBy("position", false)).Scan(&name)
	if err != nil {
		if errors.Is(store.Translate(err), store.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("leads: select default column: %w", err)
	}
	return name, nil
}

func scanLead(row interface{ Scan(...any) error }) (*Lead, error) {
	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.OrgID,
		&lead.Phone,
		&lead.Name,
		&lead.Status,
		&lead.Source,
		&lead.Value,
		&lead.TaxID,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		if errors.Is(store.Translate(err), store.ErrNotFound) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return &lead, nil
}
