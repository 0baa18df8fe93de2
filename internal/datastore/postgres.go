package datastore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres executes record operations with pgx. It does no tenant checking of its own and
// is expected to sit behind a Guard.
type Postgres struct {
	db       DBTX
	registry *Registry
}

// NewPostgres builds the executor.
func NewPostgres(db DBTX, registry *Registry) *Postgres {
	return &Postgres{db: db, registry: registry}
}

// WithDB returns an executor bound to another handle, typically a transaction.
func (p *Postgres) WithDB(db DBTX) *Postgres {
	return &Postgres{db: db, registry: p.registry}
}

// Find implements Executor.
func (p *Postgres) Find(ctx context.Context, q Query) ([]Record, error) {
	sql, args, err := p.buildSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("datastore: find %s: %w", q.Entity, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("datastore: scan %s: %w", q.Entity, err)
	}
	out := make([]Record, len(maps))
	for i, m := range maps {
		out[i] = Record(m)
	}
	return out, nil
}

// Count implements Executor.
func (p *Postgres) Count(ctx context.Context, q Query) (int64, error) {
	sql, args, err := p.buildCount(q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := p.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("datastore: count %s: %w", q.Entity, err)
	}
	return n, nil
}

// Insert implements Executor and returns the stored row.
func (p *Postgres) Insert(ctx context.Context, entity Entity, rec Record) (Record, error) {
	sql, args, err := p.buildInsert(entity, rec)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("datastore: insert %s: %w", entity, err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("datastore: insert %s: %w", entity, err)
	}
	return Record(m), nil
}

// Update implements Executor.
func (p *Postgres) Update(ctx context.Context, entity Entity, filter Filter, values Record) (int64, error) {
	sql, args, err := p.buildUpdate(entity, filter, values)
	if err != nil {
		return 0, err
	}
	tag, err := p.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("datastore: update %s: %w", entity, err)
	}
	return tag.RowsAffected(), nil
}

// Delete implements Executor.
func (p *Postgres) Delete(ctx context.Context, entity Entity, filter Filter) (int64, error) {
	sql, args, err := p.buildDelete(entity, filter)
	if err != nil {
		return 0, err
	}
	tag, err := p.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("datastore: delete %s: %w", entity, err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) spec(e Entity) (Spec, error) {
	s, ok := p.registry.Lookup(e)
	if !ok {
		return Spec{}, fmt.Errorf("datastore: unknown entity %s", e)
	}
	return s, nil
}

func (p *Postgres) buildSelect(q Query) (string, []any, error) {
	s, err := p.spec(q.Entity)
	if err != nil {
		return "", nil, err
	}
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(cols, ", "), pgx.Identifier{s.Table}.Sanitize())
	args, err := writeWhere(&b, s, q.Filter, nil)
	if err != nil {
		return "", nil, err
	}
	if q.OrderBy != "" {
		if !s.HasColumn(q.OrderBy) {
			return "", nil, fmt.Errorf("datastore: %s cannot order by %q", s.Entity, q.OrderBy)
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", pgx.Identifier{q.OrderBy}.Sanitize(), dir)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args, nil
}

func (p *Postgres) buildCount(q Query) (string, []any, error) {
	s, err := p.spec(q.Entity)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT COUNT(*) FROM %s", pgx.Identifier{s.Table}.Sanitize())
	args, err := writeWhere(&b, s, q.Filter, nil)
	if err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func (p *Postgres) buildInsert(e Entity, rec Record) (string, []any, error) {
	s, err := p.spec(e)
	if err != nil {
		return "", nil, err
	}
	if len(rec) == 0 {
		return "", nil, fmt.Errorf("datastore: empty insert into %s", e)
	}
	keys := sortedKeys(rec)
	cols := make([]string, len(keys))
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		if !s.HasColumn(k) {
			return "", nil, fmt.Errorf("datastore: %s has no column %q", e, k)
		}
		cols[i] = pgx.Identifier{k}.Sanitize()
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = rec[k]
	}
	returning := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		returning[i] = pgx.Identifier{c}.Sanitize()
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		pgx.Identifier{s.Table}.Sanitize(), strings.Join(cols, ", "), strings.Join(marks, ", "), strings.Join(returning, ", "))
	return sql, args, nil
}

func (p *Postgres) buildUpdate(e Entity, filter Filter, values Record) (string, []any, error) {
	s, err := p.spec(e)
	if err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("datastore: empty update of %s", e)
	}
	keys := sortedKeys(values)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(filter))
	for i, k := range keys {
		if !s.HasColumn(k) {
			return "", nil, fmt.Errorf("datastore: %s has no column %q", e, k)
		}
		args = append(args, values[k])
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{k}.Sanitize(), len(args))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET %s", pgx.Identifier{s.Table}.Sanitize(), strings.Join(sets, ", "))
	args, err = writeWhere(&b, s, filter, args)
	if err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func (p *Postgres) buildDelete(e Entity, filter Filter) (string, []any, error) {
	s, err := p.spec(e)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "DELETE FROM %s", pgx.Identifier{s.Table}.Sanitize())
	args, err := writeWhere(&b, s, filter, nil)
	if err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func writeWhere(b *strings.Builder, s Spec, filter Filter, args []any) ([]any, error) {
	if len(filter) == 0 {
		return args, nil
	}
	keys := sortedKeys(filter)
	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		if !s.HasColumn(k) {
			return nil, fmt.Errorf("datastore: %s cannot filter on %q", s.Entity, k)
		}
		col := pgx.Identifier{k}.Sanitize()
		switch v := filter[k].(type) {
		case nil:
			clauses = append(clauses, col+" IS NULL")
		case In:
			if len(v) == 0 {
				clauses = append(clauses, "FALSE")
				continue
			}
			args = append(args, []any(v))
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", col, len(args)))
		default:
			args = append(args, v)
			clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(clauses, " AND "))
	return args, nil
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
