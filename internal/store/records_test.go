package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var leadsTable = Table{Name: "leads", Columns: []string{"id", "org_id", "phone"}}

func TestGetByIDBuildsQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, org_id, phone FROM leads WHERE id = $1 LIMIT 1")).
		WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "org_id", "phone"}).AddRow("lead-1", "org-1", "5511988887777"))

	var id, org, phone string
	if err := GetByID(context.Background(), mock, leadsTable, "lead-1").Scan(&id, &org, &phone); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if phone != "5511988887777" {
		t.Fatalf("unexpected phone %s", phone)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByFilterSortsColumnsAndAppliesOptions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, org_id, phone FROM leads WHERE org_id = $1 AND phone = $2 ORDER BY id DESC LIMIT 5")).
		WithArgs("org-1", "5511").
		WillReturnRows(pgxmock.NewRows([]string{"id", "org_id", "phone"}).
			AddRow("a", "org-1", "5511").
			AddRow("b", "org-1", "5511"))

	rows, err := GetByFilter(context.Background(), mock, leadsTable,
		Filter{"phone": "5511", "org_id": "org-1"}, OrderBy("id", true), Limit(5))
	if err != nil {
		t.Fatalf("GetByFilter: %v", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 rows, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertIgnoresConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	query := regexp.QuoteMeta("INSERT INTO leads (id, org_id, phone) VALUES ($1, $2, $3) ON CONFLICT (org_id, phone) DO NOTHING")
	mock.ExpectExec(query).WithArgs("a", "org-1", "5511").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(query).WithArgs("b", "org-1", "5511").WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := Upsert(context.Background(), mock, "leads", Record{"id": "a", "org_id": "org-1", "phone": "5511"}, "org_id", "phone")
	if err != nil || !inserted {
		t.Fatalf("expected first insert, got inserted=%v err=%v", inserted, err)
	}
	inserted, err = Upsert(context.Background(), mock, "leads", Record{"id": "b", "org_id": "org-1", "phone": "5511"}, "org_id", "phone")
	if err != nil || inserted {
		t.Fatalf("expected conflict to be ignored, got inserted=%v err=%v", inserted, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateRequiresFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	if _, err := Update(context.Background(), mock, "leads", Record{"tax_id": "1"}, nil); err == nil {
		t.Fatalf("expected missing filter error")
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE leads SET tax_id = $1 WHERE id = $2")).
		WithArgs("12345678909", "lead-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	n, err := Update(context.Background(), mock, "leads", Record{"tax_id": "12345678909"}, Filter{"id": "lead-1"})
	if err != nil || n != 1 {
		t.Fatalf("expected one row updated, got %d err=%v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInvalidIdentifiersRejected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	bad := Table{Name: "leads; DROP TABLE leads", Columns: []string{"id"}}
	if err := GetByID(context.Background(), mock, bad, "x").Scan(new(string)); err == nil {
		t.Fatalf("expected identifier error")
	}
	if _, err := Upsert(context.Background(), mock, "leads", Record{"Phone": "1"}); err == nil {
		t.Fatalf("expected column identifier error")
	}
}

func TestTranslateAndUniqueViolation(t *testing.T) {
	if !errors.Is(Translate(pgx.ErrNoRows), ErrNotFound) {
		t.Fatalf("expected ErrNoRows to map to ErrNotFound")
	}
	other := errors.New("boom")
	if Translate(other) != other {
		t.Fatalf("expected other errors to pass through")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("expected unique violation")
	}
	if IsUniqueViolation(other) {
		t.Fatalf("expected non pg error to be false")
	}
}
