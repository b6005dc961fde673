// Package models provides data model definitions for the BillSync core.
package models

import (
	"encoding/json"
	"time"
)

// QueueEntry represents one pending local mutation awaiting upload.
//
// Entries are drained oldest-first per entity table so that a CREATE is
// always uploaded before a later UPDATE of the same row. Synced entries
// are purged by a separate compaction step; failed entries are retained
// for inspection and manual retry.
type QueueEntry struct {
	ID         UUID            `db:"id" json:"id"`
	TableName  string          `db:"table_name" json:"table_name"`
	Operation  Operation       `db:"operation" json:"operation"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	SyncStatus SyncStatus      `db:"sync_status" json:"sync_status"`
	Attempts   int             `db:"attempts" json:"attempts"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
	UpdatedAt  int64           `db:"updated_at" json:"updated_at"`
}

// QueueTableName is the physical table holding the mutation log.
const QueueTableName = "sync_queue"

// DecodePayload unmarshals the payload snapshot into a Row.
func (q *QueueEntry) DecodePayload() (Row, error) {
	var row Row
	if err := json.Unmarshal(q.Payload, &row); err != nil {
		return nil, err
	}
	return row, nil
}

// CreatedAtTime returns CreatedAt as time.Time.
func (q *QueueEntry) CreatedAtTime() time.Time {
	return time.Unix(q.CreatedAt, 0)
}
