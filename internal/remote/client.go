// Package remote defines the row-oriented contract the sync engine
// depends on, independent of any specific backend implementation.
package remote

import (
	"context"
	"fmt"

	"github.com/karkhana/billsync/internal/models"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
)

// Filter narrows a Select to rows matching column <op> value.
type Filter struct {
	Column string      `json:"column"`
	Op     Op          `json:"op"`
	Value  interface{} `json:"value"`
}

// Eq builds an equality filter.
func Eq(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// Gte builds a greater-or-equal filter.
func Gte(column string, value interface{}) Filter {
	return Filter{Column: column, Op: OpGte, Value: value}
}

// Query describes one Select against a remote table.
type Query struct {
	Table      string   `json:"table"`
	Filters    []Filter `json:"filters,omitempty"`
	OrderBy    string   `json:"order_by,omitempty"`
	Descending bool     `json:"descending,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// Client is the row-level contract of the remote backend. Insert
// returns the stored row, which may carry a server-assigned id and
// server-filled fields differing from the submitted ones.
type Client interface {
	Select(ctx context.Context, q Query) ([]models.Row, error)
	Insert(ctx context.Context, table string, row models.Row) (models.Row, error)
	Update(ctx context.Context, table, id string, fields models.Row) (models.Row, error)
	Delete(ctx context.Context, table, id string) error
}

// Error is a structured rejection from the remote backend.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: %s (%s, status %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("remote: %s (status %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether the error is a remote not-found
// rejection. DELETE treats this as success for idempotency.
func IsNotFound(err error) bool {
	re, ok := err.(*Error)
	return ok && re.StatusCode == 404
}

// IsRejection reports whether the error is a definitive backend
// rejection (constraint violation, bad payload) rather than a
// transport failure. Rejections mark the queue entry failed; transport
// failures do too, but retries are more likely to succeed.
func IsRejection(err error) bool {
	re, ok := err.(*Error)
	return ok && re.StatusCode >= 400 && re.StatusCode < 500
}
