package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Filter holds equality constraints keyed by column. A nil value matches NULL and an In
// value matches any of its members.
type Filter map[string]any

// In matches a column against a set of values.
type In []any

// Clone returns a shallow copy.
func (f Filter) Clone() Filter {
	out := make(Filter, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Record is one row keyed by column.
type Record map[string]any

// Query describes a read against one entity.
type Query struct {
	Entity  Entity
	Filter  Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Executor runs record operations against storage.
type Executor interface {
	Find(ctx context.Context, q Query) ([]Record, error)
	Count(ctx context.Context, q Query) (int64, error)
	Insert(ctx context.Context, entity Entity, rec Record) (Record, error)
	Update(ctx context.Context, entity Entity, filter Filter, values Record) (int64, error)
	Delete(ctx context.Context, entity Entity, filter Filter) (int64, error)
}

// UUID reads a uuid column, accepting the representations pgx and callers produce.
func (r Record) UUID(col string) uuid.UUID {
	id, _ := asUUID(r[col])
	return id
}

// String reads a text column.
func (r Record) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int64 reads an integer column.
func (r Record) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

// Time reads a timestamp column.
func (r Record) Time(col string) time.Time {
	t, _ := r[col].(time.Time)
	return t
}

// Map reads a JSON object column.
func (r Record) Map(col string) map[string]any {
	m, _ := r[col].(map[string]any)
	return m
}

func asUUID(v any) (uuid.UUID, bool) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, true
	case [16]byte:
		return uuid.UUID(id), true
	case string:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return uuid.Nil, false
		}
		return parsed, true
	default:
		return uuid.Nil, false
	}
}
