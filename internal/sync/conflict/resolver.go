// Package conflict repairs human-facing sequence number collisions
// between devices during upload.
//
// The check-then-act sequence here is inherently racy across two
// devices syncing concurrently: the design accepts the narrow window
// and treats a resulting insert rejection as a retryable sync error —
// the row stays pending and gets a fresh resolution pass on the next
// drain. This is best-effort collision avoidance, not a guarantee.
//
// The increment scheme assumes sequence values within one scope keep a
// fixed-width zero-padded suffix ("049", "050"). The max-value query
// relies on the backend's string ordering of the column, so mixed
// widths ("9" vs "10") can sort wrongly and yield a stale maximum.
package conflict

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/karkhana/billsync/internal/logging"
	"github.com/karkhana/billsync/internal/models"
	"github.com/karkhana/billsync/internal/remote"
)

// Result is the outcome of one resolution pass.
type Result struct {
	// Payload is the outgoing payload, with the sequence field
	// replaced when a collision was found.
	Payload models.Row

	// Changed indicates the sequence value was replaced. Callers must
	// propagate the new value back into the local store so local and
	// remote copies never diverge.
	Changed bool

	// Column and Value identify the replacement when Changed.
	Column string
	Value  string

	// Degraded indicates the timestamp fallback was used because the
	// max-value query failed or returned nothing parseable.
	Degraded bool
}

// Resolver checks outgoing CREATE payloads against remote state.
type Resolver struct {
	remote remote.Client
}

// NewResolver creates a Resolver over the remote backend client.
func NewResolver(client remote.Client) *Resolver {
	return &Resolver{remote: client}
}

// suffixPattern captures the trailing numeric run of a sequence value.
var suffixPattern = regexp.MustCompile(`^(.*?)(\d+)$`)

// Resolve applies the table's sequence rule, if any, to an outgoing
// CREATE payload. Tables without a rule pass through unchanged.
//
// A remote query failure is returned as an error: the caller marks the
// item failed and retries the whole resolution on the next pass.
func (r *Resolver) Resolve(ctx context.Context, table string, payload models.Row) (*Result, error) {
	rule, ok := models.SequenceRuleFor(table)
	if !ok {
		return &Result{Payload: payload}, nil
	}

	candidate := stringValue(payload[rule.Column])
	if candidate == "" {
		return &Result{Payload: payload}, nil
	}

	scopeFilters := []remote.Filter{remote.Eq(rule.Column, candidate)}
	var scopeValue string
	if rule.ScopeColumn != "" {
		scopeValue = stringValue(payload[rule.ScopeColumn])
		scopeFilters = append(scopeFilters, remote.Eq(rule.ScopeColumn, scopeValue))
	}

	existing, err := r.remote.Select(ctx, remote.Query{
		Table:   table,
		Filters: scopeFilters,
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("collision check failed for %s.%s: %w", table, rule.Column, err)
	}
	if len(existing) == 0 {
		return &Result{Payload: payload}, nil
	}

	next, degraded := r.nextFree(ctx, table, rule, scopeValue, candidate)

	resolved := payload.Clone()
	resolved[rule.Column] = next

	if degraded {
		logging.WarnWithCode("Sequence collision resolved via timestamp fallback",
			"SEQUENCE_COLLISION_UNRESOLVED",
			map[string]interface{}{
				"table":     table,
				"column":    rule.Column,
				"candidate": candidate,
				"assigned":  next,
			})
	} else {
		logging.Info("Sequence collision resolved", map[string]interface{}{
			"table":     table,
			"column":    rule.Column,
			"candidate": candidate,
			"assigned":  next,
		})
	}

	return &Result{
		Payload:  resolved,
		Changed:  true,
		Column:   rule.Column,
		Value:    next,
		Degraded: degraded,
	}, nil
}

// nextFree computes the replacement value: the maximum existing value
// under the same scope, numeric suffix incremented, original
// prefix/padding convention re-applied. When the max query fails or
// yields nothing parseable it falls back to a timestamp-derived value —
// a degraded-mode behavior, not a correctness guarantee.
func (r *Resolver) nextFree(ctx context.Context, table string, rule models.SequenceRule, scopeValue, candidate string) (string, bool) {
	var filters []remote.Filter
	if rule.ScopeColumn != "" {
		filters = append(filters, remote.Eq(rule.ScopeColumn, scopeValue))
	}

	maxRows, err := r.remote.Select(ctx, remote.Query{
		Table:      table,
		Filters:    filters,
		OrderBy:    rule.Column,
		Descending: true,
		Limit:      1,
	})
	if err == nil && len(maxRows) > 0 {
		maxValue := stringValue(maxRows[0][rule.Column])
		if m := suffixPattern.FindStringSubmatch(maxValue); m != nil {
			prefix, suffix := m[1], m[2]
			n, parseErr := strconv.ParseInt(suffix, 10, 64)
			if parseErr == nil {
				return fmt.Sprintf("%s%0*d", prefix, len(suffix), n+1), false
			}
		}
	}

	prefix := candidate
	if m := suffixPattern.FindStringSubmatch(candidate); m != nil {
		prefix = m[1]
	}
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixMilli()), true
}

// stringValue renders a payload scalar as the sequence string it
// represents. Integer-valued sequences arrive as JSON numbers.
func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatInt(int64(s), 10)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}
