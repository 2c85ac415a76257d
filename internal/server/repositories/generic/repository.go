// Package generic implements CRUD over any entity type described by an
// explicit Schema. There is no reflection: each entity spells out its
// columns, how to scan a row and how to read its values.
package generic

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/dbx"
)

// DefaultLimit is used by the list operations when limit is not positive.
const DefaultLimit = 100

// ErrUnknownField is returned when a field name is not in the schema's
// whitelist.
var ErrUnknownField = fmt.Errorf("%w: unknown field", common.ErrorBadRequest)

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Schema describes how an entity maps to a table.
type Schema[T any] struct {
	// Table is the table name.
	Table string
	// Key is the primary key column.
	Key string
	// Columns lists every column in the order used by Scan and Values.
	Columns []string
	// Scan reads one row in Columns order.
	Scan func(s Scanner) (*T, error)
	// Values returns the entity's values in Columns order.
	Values func(e *T) []any
	// Fields is the set of columns callers may filter or update by.
	Fields map[string]struct{}
	// OrderBy is the default ORDER BY clause for list queries.
	OrderBy string
	// UpdatedAt names the column bumped by Update; empty for none.
	UpdatedAt string
	// BeforeCreate fills generated values (ID, timestamps) before insert.
	BeforeCreate func(e *T, now time.Time)
}

// Repository runs single-statement CRUD for one entity over a DBTX.
type Repository[T any] struct {
	db     dbx.DBTX
	schema *Schema[T]
	now    func() time.Time
}

func New[T any](db dbx.DBTX, schema *Schema[T]) *Repository[T] {
	return &Repository[T]{db: db, schema: schema, now: time.Now}
}

func (r *Repository[T]) columns() string {
	return strings.Join(r.schema.Columns, ", ")
}

func (r *Repository[T]) checkField(field string) error {
	if _, ok := r.schema.Fields[field]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

func (r *Repository[T]) orderBy() string {
	if r.schema.OrderBy == "" {
		return r.schema.Key
	}
	return r.schema.OrderBy
}

func page(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return offset, limit
}

// wrap maps driver errors onto the common sentinels.
func wrap(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return common.ErrorNotFound
	case dbx.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", common.ErrorConflict, err)
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

// Get returns the entity with the given key or common.ErrorNotFound.
func (r *Repository[T]) Get(ctx context.Context, id string) (*T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, r.columns(), r.schema.Table, r.schema.Key)

	e, err := r.schema.Scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrap(err)
	}
	return e, nil
}

// GetByField returns the first entity (in default order) whose field equals
// value. A nil value matches NULL.
func (r *Repository[T]) GetByField(ctx context.Context, field string, value any) (*T, error) {
	if err := r.checkField(field); err != nil {
		return nil, err
	}

	where, args := r.where(field, value)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT 1`,
		r.columns(), r.schema.Table, where, r.orderBy())

	e, err := r.schema.Scan(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, wrap(err)
	}
	return e, nil
}

// ListByField returns a page of entities whose field equals value.
func (r *Repository[T]) ListByField(ctx context.Context, field string, value any, offset, limit int) ([]*T, error) {
	if err := r.checkField(field); err != nil {
		return nil, err
	}
	offset, limit = page(offset, limit)

	where, args := r.where(field, value)
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		r.columns(), r.schema.Table, where, r.orderBy(), n+1, n+2)

	return r.list(ctx, query, append(args, limit, offset)...)
}

// List returns a page of all entities in default order. A negative offset
// is treated as 0 and a non-positive limit as DefaultLimit.
func (r *Repository[T]) List(ctx context.Context, offset, limit int) ([]*T, error) {
	offset, limit = page(offset, limit)

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s LIMIT $1 OFFSET $2`,
		r.columns(), r.schema.Table, r.orderBy())

	return r.list(ctx, query, limit, offset)
}

func (r *Repository[T]) list(ctx context.Context, query string, args ...any) ([]*T, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	res := make([]*T, 0)
	for rows.Next() {
		e, err := r.schema.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return res, nil
}

// Create inserts e and returns the stored row. A unique violation is
// reported as common.ErrorConflict.
func (r *Repository[T]) Create(ctx context.Context, e *T) (*T, error) {
	if r.schema.BeforeCreate != nil {
		r.schema.BeforeCreate(e, r.now())
	}

	placeholders := make([]string, len(r.schema.Columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING %s`,
		r.schema.Table, r.columns(), strings.Join(placeholders, ", "), r.columns())

	created, err := r.schema.Scan(r.db.QueryRowContext(ctx, query, r.schema.Values(e)...))
	if err != nil {
		return nil, wrap(err)
	}
	return created, nil
}

// Update writes the given whitelisted fields and returns the updated row.
// An empty map is a plain Get.
func (r *Repository[T]) Update(ctx context.Context, id string, fields map[string]any) (*T, error) {
	if len(fields) == 0 {
		return r.Get(ctx, id)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if err := r.checkField(name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names)+1)
	args := make([]any, 0, len(names)+2)
	for _, name := range names {
		args = append(args, fields[name])
		sets = append(sets, fmt.Sprintf("%s = $%d", name, len(args)))
	}
	if r.schema.UpdatedAt != "" {
		if _, explicit := fields[r.schema.UpdatedAt]; !explicit {
			args = append(args, r.now())
			sets = append(sets, fmt.Sprintf("%s = $%d", r.schema.UpdatedAt, len(args)))
		}
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $%d RETURNING %s`,
		r.schema.Table, strings.Join(sets, ", "), r.schema.Key, len(args), r.columns())

	updated, err := r.schema.Scan(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, wrap(err)
	}
	return updated, nil
}

// Delete removes the entity and reports whether a row existed.
func (r *Repository[T]) Delete(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, r.schema.Table, r.schema.Key)

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

// DeleteByField removes every entity whose field equals value and returns
// the number of rows removed.
func (r *Repository[T]) DeleteByField(ctx context.Context, field string, value any) (int64, error) {
	if err := r.checkField(field); err != nil {
		return 0, err
	}

	where, args := r.where(field, value)
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s`, r.schema.Table, where)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *Repository[T]) where(field string, value any) (string, []any) {
	if value == nil {
		return field + " IS NULL", nil
	}
	return field + " = $1", []any{value}
}
