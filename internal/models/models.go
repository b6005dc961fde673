// Package models provides data model definitions for the BillSync core.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// UUID is a wrapper around string for identifier type safety.
//
// Locally-minted identifiers are UUID v4 strings; server-assigned
// identifiers are whatever the remote backend generates. Both travel
// through the same column, so the type does not enforce a format.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// SyncStatus represents the sync state of an entity row or queue entry.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// Operation represents a queued mutation type.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// Row is a generic entity row as moved between the local store, the
// sync queue payloads, and the remote backend.
type Row map[string]interface{}

// ID returns the row's id field as a string, or "" when absent.
func (r Row) ID() string {
	if v, ok := r["id"]; ok {
		switch id := v.(type) {
		case string:
			return id
		case UUID:
			return string(id)
		}
	}
	return ""
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// UnixTime returns t as the unix-seconds representation stored in
// created_at/updated_at columns.
func UnixTime(t time.Time) int64 {
	return t.Unix()
}
