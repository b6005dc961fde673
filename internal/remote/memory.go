// Package remote defines the row-oriented contract the sync engine
// depends on, independent of any specific backend implementation.
package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/karkhana/billsync/internal/models"
)

// UniqueRule declares a server-side uniqueness constraint the Memory
// backend enforces, scoped by an optional column.
type UniqueRule struct {
	Table       string
	Column      string
	ScopeColumn string
}

// Memory is an in-memory Client used by tests and by multi-device
// simulations. It mimics the central backend closely enough for the
// sync engine: server-assigned ids, equality/range filters, ordering,
// limits, and optional uniqueness constraints.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]models.Row

	// AssignIDs makes Insert replace the client-supplied id with a
	// server-generated one, the behavior that triggers identifier
	// remapping on devices.
	AssignIDs bool
	nextID    int

	// Unique lists constraints enforced on Insert with a 409
	// rejection.
	Unique []UniqueRule

	// failNext, when set, fails the next call with the given error.
	failNext error
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]models.Row)}
}

// FailNext makes the next call return err instead of executing.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *Memory) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

// Seed inserts a row directly, bypassing id assignment and
// constraints. Test setup helper.
func (m *Memory) Seed(table string, row models.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], row.Clone())
}

// Rows returns a copy of the stored rows for a table.
func (m *Memory) Rows(table string) []models.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, r.Clone())
	}
	return out
}

// Select implements Client.
func (m *Memory) Select(ctx context.Context, q Query) ([]models.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	var out []models.Row
	for _, row := range m.tables[q.Table] {
		if matches(row, q.Filters) {
			out = append(out, row.Clone())
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compare(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Insert implements Client.
func (m *Memory) Insert(ctx context.Context, table string, row models.Row) (models.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	stored := row.Clone()
	if m.AssignIDs {
		m.nextID++
		stored["id"] = fmt.Sprintf("srv-%d", m.nextID)
	} else if stored.ID() == "" {
		m.nextID++
		stored["id"] = fmt.Sprintf("srv-%d", m.nextID)
	}

	for _, rule := range m.Unique {
		if rule.Table != table {
			continue
		}
		value, ok := stored[rule.Column]
		if !ok {
			continue
		}
		for _, existing := range m.tables[table] {
			if compare(existing[rule.Column], value) != 0 {
				continue
			}
			if rule.ScopeColumn != "" && compare(existing[rule.ScopeColumn], stored[rule.ScopeColumn]) != 0 {
				continue
			}
			return nil, &Error{
				StatusCode: 409,
				Code:       "UNIQUE_VIOLATION",
				Message:    fmt.Sprintf("%s.%s already holds %v", table, rule.Column, value),
			}
		}
	}

	m.tables[table] = append(m.tables[table], stored)
	return stored.Clone(), nil
}

// Update implements Client.
func (m *Memory) Update(ctx context.Context, table, id string, fields models.Row) (models.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	for i, row := range m.tables[table] {
		if row.ID() == id {
			for k, v := range fields {
				if k == "id" {
					continue
				}
				row[k] = v
			}
			m.tables[table][i] = row
			return row.Clone(), nil
		}
	}
	return nil, &Error{StatusCode: 404, Code: "NOT_FOUND", Message: fmt.Sprintf("%s: no row %s", table, id)}
}

// Delete implements Client.
func (m *Memory) Delete(ctx context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeFailure(); err != nil {
		return err
	}

	rows := m.tables[table]
	for i, row := range rows {
		if row.ID() == id {
			m.tables[table] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return &Error{StatusCode: 404, Code: "NOT_FOUND", Message: fmt.Sprintf("%s: no row %s", table, id)}
}

func matches(row models.Row, filters []Filter) bool {
	for _, f := range filters {
		c := compare(row[f.Column], f.Value)
		switch f.Op {
		case OpGte:
			if c < 0 {
				return false
			}
		default: // OpEq
			if c != 0 {
				return false
			}
		}
	}
	return true
}

// compare orders two scalar values of the kinds that travel through
// row payloads: strings, numbers, bools, nil.
func compare(a, b interface{}) int {
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
