// Package store provides the table-agnostic record primitives every
// repository in the pipeline is built on: get by id, get by filter,
// insert-ignoring-conflict upsert, and partial update.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("store: record not found")

// Querier is the subset of pgxpool.Pool (and pgx.Tx) the primitives need.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Table names a relation and the columns read back from it, in scan order.
type Table struct {
	Name    string
	Columns []string
}

// Filter is an equality predicate; keys are column names.
type Filter map[string]any

// Record is a partial row; keys are column names.
type Record map[string]any

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type queryOptions struct {
	orderBy []string
	limit   int
}

// QueryOption tunes GetByFilter.
type QueryOption func(*queryOptions)

// OrderBy appends an ORDER BY term such as "sent_at DESC".
func OrderBy(column string, desc bool) QueryOption {
	return func(o *queryOptions) {
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		o.orderBy = append(o.orderBy, column+" "+dir)
	}
}

// Limit caps the number of returned rows.
func Limit(n int) QueryOption {
	return func(o *queryOptions) {
		if n > 0 {
			o.limit = n
		}
	}
}

// GetByID fetches a single row by its id column.
func GetByID(ctx context.Context, q Querier, t Table, id any) pgx.Row {
	return FirstByFilter(ctx, q, t, Filter{"id": id})
}

// FirstByFilter fetches the first row matching the filter.
func FirstByFilter(ctx context.Context, q Querier, t Table, f Filter, opts ...QueryOption) pgx.Row {
	opts = append(opts, Limit(1))
	sql, args, err := buildSelect(t, f, opts...)
	if err != nil {
		return errRow{err: err}
	}
	return q.QueryRow(ctx, sql, args...)
}

// GetByFilter returns every row matching the filter.
func GetByFilter(ctx context.Context, q Querier, t Table, f Filter, opts ...QueryOption) (pgx.Rows, error) {
	sql, args, err := buildSelect(t, f, opts...)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: select %s: %w", t.Name, err)
	}
	return rows, nil
}

// Upsert inserts the record and silently ignores a unique-constraint
// conflict on the given columns. It reports whether a row was inserted.
// Callers that need the stored row fetch it afterwards, which makes
// concurrent duplicate inserts converge on a single row.
func Upsert(ctx context.Context, q Querier, table string, rec Record, conflict ...string) (bool, error) {
	sql, args, err := buildInsert(table, rec, conflict)
	if err != nil {
		return false, err
	}
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("store: upsert %s: %w", table, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Update applies a partial record to every row matching the filter.
func Update(ctx context.Context, q Querier, table string, set Record, f Filter) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, errors.New("store: update requires at least one column")
	}
	if len(f) == 0 {
		return 0, errors.New("store: update requires a filter")
	}
	setCols := sortedKeys(set)
	args := make([]any, 0, len(set)+len(f))
	assignments := make([]string, 0, len(setCols))
	for _, col := range setCols {
		if err := checkIdent(col); err != nil {
			return 0, err
		}
		args = append(args, set[col])
		assignments = append(assignments, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	where, args, err := buildWhere(f, args)
	if err != nil {
		return 0, err
	}
	sql := fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(assignments, ", "), where)
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("store: update %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// Translate maps driver-level "no rows" to ErrNotFound.
func Translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func buildSelect(t Table, f Filter, opts ...QueryOption) (string, []any, error) {
	if err := checkIdent(t.Name); err != nil {
		return "", nil, err
	}
	if len(t.Columns) == 0 {
		return "", nil, fmt.Errorf("store: table %s has no columns", t.Name)
	}
	for _, col := range t.Columns {
		if err := checkIdent(col); err != nil {
			return "", nil, err
		}
	}
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	where, args, err := buildWhere(f, nil)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", strings.Join(t.Columns, ", "), t.Name, where)
	if len(o.orderBy) > 0 {
		for _, term := range o.orderBy {
			if err := checkIdent(strings.Fields(term)[0]); err != nil {
				return "", nil, err
			}
		}
		fmt.Fprintf(&b, " ORDER BY %s", strings.Join(o.orderBy, ", "))
	}
	if o.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", o.limit)
	}
	return b.String(), args, nil
}

func buildWhere(f Filter, args []any) (string, []any, error) {
	if len(f) == 0 {
		return "", args, nil
	}
	cols := sortedKeys(f)
	conds := make([]string, 0, len(cols))
	for _, col := range cols {
		if err := checkIdent(col); err != nil {
			return "", nil, err
		}
		args = append(args, f[col])
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func buildInsert(table string, rec Record, conflict []string) (string, []any, error) {
	if err := checkIdent(table); err != nil {
		return "", nil, err
	}
	if len(rec) == 0 {
		return "", nil, errors.New("store: insert requires at least one column")
	}
	cols := sortedKeys(rec)
	args := make([]any, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for _, col := range cols {
		if err := checkIdent(col); err != nil {
			return "", nil, err
		}
		args = append(args, rec[col])
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	for _, col := range conflict {
		if err := checkIdent(col); err != nil {
			return "", nil, err
		}
	}
	target := ""
	if len(conflict) > 0 {
		target = " (" + strings.Join(conflict, ", ") + ")"
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT%s DO NOTHING",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), target)
	return sql, args, nil
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("store: invalid identifier %q", name)
	}
	return nil
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
