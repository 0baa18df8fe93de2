package datastore

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Executor with the same filter semantics as Postgres. Service
// tests of every package run against it behind a Guard.
type Memory struct {
	mu       sync.Mutex
	registry *Registry
	rows     map[Entity][]Record
	now      func() time.Time
}

// NewMemory builds an empty store.
func NewMemory(registry *Registry) *Memory {
	return &Memory{registry: registry, rows: make(map[Entity][]Record), now: time.Now}
}

// Find implements Executor.
func (m *Memory) Find(ctx context.Context, q Query) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.spec(q.Entity)
	if err != nil {
		return nil, err
	}
	if err := checkColumns(s, q.Filter); err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range m.rows[q.Entity] {
		if matches(r, q.Filter) {
			out = append(out, copyRecord(r))
		}
	}
	if q.OrderBy != "" {
		slices.SortStableFunc(out, func(a, b Record) int {
			c := compareValues(a[q.OrderBy], b[q.OrderBy])
			if q.Desc {
				return -c
			}
			return c
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

// Count implements Executor.
func (m *Memory) Count(ctx context.Context, q Query) (int64, error) {
	q.Limit, q.Offset, q.OrderBy = 0, 0, ""
	rows, err := m.Find(ctx, q)
	return int64(len(rows)), err
}

// Insert implements Executor. Missing id and created_at columns are filled in.
func (m *Memory) Insert(ctx context.Context, entity Entity, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.spec(entity)
	if err != nil {
		return nil, err
	}
	if err := checkColumns(s, Filter(rec)); err != nil {
		return nil, err
	}
	stored := copyRecord(rec)
	if s.HasColumn("id") && stored["id"] == nil {
		stored["id"] = uuid.New()
	}
	if s.HasColumn("created_at") && stored["created_at"] == nil {
		stored["created_at"] = m.now()
	}
	m.rows[entity] = append(m.rows[entity], stored)
	return copyRecord(stored), nil
}

// Update implements Executor.
func (m *Memory) Update(ctx context.Context, entity Entity, filter Filter, values Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.spec(entity)
	if err != nil {
		return 0, err
	}
	if err := checkColumns(s, filter); err != nil {
		return 0, err
	}
	if err := checkColumns(s, Filter(values)); err != nil {
		return 0, err
	}
	var n int64
	for _, r := range m.rows[entity] {
		if !matches(r, filter) {
			continue
		}
		for k, v := range values {
			r[k] = v
		}
		n++
	}
	return n, nil
}

// Delete implements Executor.
func (m *Memory) Delete(ctx context.Context, entity Entity, filter Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.spec(entity)
	if err != nil {
		return 0, err
	}
	if err := checkColumns(s, filter); err != nil {
		return 0, err
	}
	kept := m.rows[entity][:0]
	var n int64
	for _, r := range m.rows[entity] {
		if matches(r, filter) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows[entity] = kept
	return n, nil
}

func (m *Memory) spec(e Entity) (Spec, error) {
	s, ok := m.registry.Lookup(e)
	if !ok {
		return Spec{}, fmt.Errorf("datastore: unknown entity %s", e)
	}
	return s, nil
}

func checkColumns(s Spec, f Filter) error {
	for k := range f {
		if !s.HasColumn(k) {
			return fmt.Errorf("datastore: %s has no column %q", s.Entity, k)
		}
	}
	return nil
}

func matches(r Record, f Filter) bool {
	for k, want := range f {
		got := r[k]
		switch w := want.(type) {
		case nil:
			if got != nil {
				return false
			}
		case In:
			if !slices.ContainsFunc(w, func(v any) bool { return equalValues(got, v) }) {
				return false
			}
		default:
			if !equalValues(got, w) {
				return false
			}
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if ida, ok := asUUID(a); ok {
		idb, ok := asUUID(b)
		return ok && ida == idb
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		return cmp.Compare(x, y)
	case int64:
		y, _ := b.(int64)
		return cmp.Compare(x, y)
	case int:
		y, _ := b.(int)
		return cmp.Compare(x, y)
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	default:
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func copyRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
