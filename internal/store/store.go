// Package store implements the durable local mirror of the remote
// schema plus the append-only mutation queue.
//
// Every UI-originated write commits the entity row and its queue entry
// in one SQLite transaction; a row without its queue entry (or the
// reverse) can never be observed. Writes originating from a download
// use the *Local variants, which skip the queue so authoritative remote
// state is never re-uploaded.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/karkhana/billsync/internal/apperrors"
	"github.com/karkhana/billsync/internal/db"
	"github.com/karkhana/billsync/internal/models"
)

// Store owns all local reads and writes used by the UI layer and the
// sync engine.
type Store struct {
	db *db.DB
}

// New creates a Store over an opened database. The registry is
// validated here so misconfigured table mappings fail at startup, not
// at first use.
func New(database *db.DB) (*Store, error) {
	if err := models.ValidateRegistry(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageInit, "table registry is inconsistent", err)
	}
	return &Store{db: database}, nil
}

// Initialize applies all pending schema migrations.
func (s *Store) Initialize() error {
	return db.NewMigrator(s.db.DB).Up()
}

// table resolves a physical table name against the registry.
func table(name string) (models.Table, error) {
	t, ok := models.TableByPhysical(name)
	if !ok {
		return models.Table{}, apperrors.Newf(apperrors.ErrInvalid, "unknown table %q", name)
	}
	return t, nil
}

// Insert writes a new row and appends a CREATE queue entry in the same
// transaction. An id is minted when the caller did not supply one; the
// id used is returned and is caller-visible immediately, independent of
// connectivity.
func (s *Store) Insert(tableName string, data models.Row) (string, error) {
	return s.insert(tableName, data, true)
}

// InsertLocal writes a new row without queueing it for upload. Reserved
// for the download path, where the remote is already authoritative.
func (s *Store) InsertLocal(tableName string, data models.Row) (string, error) {
	return s.insert(tableName, data, false)
}

func (s *Store) insert(tableName string, data models.Row, queue bool) (string, error) {
	t, err := table(tableName)
	if err != nil {
		return "", err
	}

	id := data.ID()
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().Unix()
	status := models.SyncStatusPending
	if !queue {
		status = models.SyncStatusSynced
		if v, ok := data["sync_status"].(string); ok && v != "" {
			status = models.SyncStatus(v)
		}
	}

	cols := []string{"id", "sync_status", "created_at", "updated_at"}
	args := []interface{}{id, string(status), now, now}
	for _, c := range t.Columns {
		if v, ok := data[c.Name]; ok {
			cols = append(cols, c.Name)
			args = append(args, bindValue(c.Kind, v))
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Physical, strings.Join(cols, ", "), placeholders)

	tx, err := s.db.Begin()
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(query, args...); err != nil {
		return "", apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("failed to insert into %s", t.Physical), err)
	}

	if queue {
		payload := snapshotPayload(t, id, data)
		if err := enqueueTx(tx, t.Physical, models.OperationCreate, payload, now); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", apperrors.Wrap(apperrors.ErrDatabase, "failed to commit insert", err)
	}
	return id, nil
}

// Update merges the partial fields into the row, bumps updated_at,
// marks the row pending, and appends an UPDATE queue entry.
func (s *Store) Update(tableName, id string, partial models.Row) error {
	return s.update(tableName, id, partial, true)
}

// UpdateLocal is the non-queueing counterpart used by the download path
// and by the sync engine when it writes back resolved sequence values
// or status transitions. It honors an explicit sync_status field in
// partial; Update always forces the row back to pending.
func (s *Store) UpdateLocal(tableName, id string, partial models.Row) error {
	return s.update(tableName, id, partial, false)
}

func (s *Store) update(tableName, id string, partial models.Row, queue bool) error {
	t, err := table(tableName)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	sets := []string{"updated_at = ?"}
	args := []interface{}{now}

	for _, c := range t.Columns {
		if v, ok := partial[c.Name]; ok {
			sets = append(sets, c.Name+" = ?")
			args = append(args, bindValue(c.Kind, v))
		}
	}

	if queue {
		sets = append(sets, "sync_status = ?")
		args = append(args, string(models.SyncStatusPending))
	} else if v, ok := partial["sync_status"].(string); ok && v != "" {
		sets = append(sets, "sync_status = ?")
		args = append(args, v)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", t.Physical, strings.Join(sets, ", "))

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(query, args...)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("failed to update %s", t.Physical), err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, "%s: no row with id %s", t.Physical, id)
	}

	if queue {
		payload := snapshotPayload(t, id, partial)
		if err := enqueueTx(tx, t.Physical, models.OperationUpdate, payload, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to commit update", err)
	}
	return nil
}

// Delete removes the row and appends a DELETE queue entry.
func (s *Store) Delete(tableName, id string) error {
	t, err := table(tableName)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.Physical), id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("failed to delete from %s", t.Physical), err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, "%s: no row with id %s", t.Physical, id)
	}

	now := time.Now().Unix()
	if err := enqueueTx(tx, t.Physical, models.OperationDelete, models.Row{"id": id}, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to commit delete", err)
	}
	return nil
}

// FindAll returns every row of the table. Read-only; never touches the
// queue.
func (s *Store) FindAll(tableName string) ([]models.Row, error) {
	t, err := table(tableName)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(fmt.Sprintf("SELECT * FROM %s ORDER BY created_at, rowid", t.Physical))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("failed to query %s", t.Physical), err)
	}
	defer rows.Close()

	return scanRows(t, rows)
}

// FindByID returns one row, or a NOT_FOUND error.
func (s *Store) FindByID(tableName, id string) (models.Row, error) {
	t, err := table(tableName)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(fmt.Sprintf("SELECT * FROM %s WHERE id = ?", t.Physical), id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("failed to query %s", t.Physical), err)
	}
	defer rows.Close()

	result, err := scanRows(t, rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "%s: no row with id %s", t.Physical, id)
	}
	return result[0], nil
}

// ReplaceLocalID rewrites the primary key of one row in place. The
// operation is idempotent: when the new id is already present the old
// row (if any) is dropped as a duplicate of the same record, and
// re-running with the same arguments is a no-op.
func (s *Store) ReplaceLocalID(tableName, oldID, newID string) error {
	t, err := table(tableName)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var newExists bool
	if err := tx.QueryRow(
		fmt.Sprintf("SELECT COUNT(*) > 0 FROM %s WHERE id = ?", t.Physical), newID,
	).Scan(&newExists); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to check new id", err)
	}

	if newExists {
		// Already renamed (or the download path inserted the server
		// row first); drop the stale local duplicate if it remains.
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.Physical), oldID); err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "failed to drop stale row", err)
		}
		return tx.Commit()
	}

	res, err := tx.Exec(fmt.Sprintf("UPDATE %s SET id = ? WHERE id = ?", t.Physical), newID, oldID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to replace id", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, "%s: no row with id %s or %s", t.Physical, oldID, newID)
	}

	return tx.Commit()
}

// UpdateForeignKey bulk-rewrites a foreign key column across a table.
// The column must be declared in the dependency registry.
func (s *Store) UpdateForeignKey(tableName, column, oldID, newID string) error {
	if _, err := table(tableName); err != nil {
		return err
	}

	declared := false
	for _, d := range models.Dependencies {
		if d.Table == tableName && d.Column == column {
			declared = true
			break
		}
	}
	if !declared {
		return apperrors.Newf(apperrors.ErrInvalid, "%s.%s is not a registered foreign key", tableName, column)
	}

	_, err := s.db.Exec(
		fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", tableName, column, column),
		newID, oldID,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, fmt.Sprintf("failed to rewrite %s.%s", tableName, column), err)
	}
	return nil
}

// snapshotPayload builds the queue payload: the id plus the business
// fields present in data, frozen at enqueue time.
func snapshotPayload(t models.Table, id string, data models.Row) models.Row {
	payload := models.Row{"id": id}
	for _, c := range t.Columns {
		if v, ok := data[c.Name]; ok {
			payload[c.Name] = v
		}
	}
	return payload
}

// bindValue normalizes a payload value for SQL binding.
func bindValue(kind models.ColumnKind, v interface{}) interface{} {
	if kind == models.KindBool {
		switch b := v.(type) {
		case bool:
			if b {
				return 1
			}
			return 0
		case float64:
			// JSON round-tripped queue payloads carry numbers.
			if b != 0 {
				return 1
			}
			return 0
		}
	}
	return v
}

// scanRows scans generic rows into maps, converting storage types back
// to their declared kinds.
func scanRows(t models.Table, rows *sql.Rows) ([]models.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []models.Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan row", err)
		}

		row := make(models.Row, len(cols))
		for i, c := range cols {
			row[c] = decodeValue(t, c, values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "row iteration failed", err)
	}
	return out, nil
}

// decodeValue converts a scanned SQLite value to the column's declared
// kind.
func decodeValue(t models.Table, column string, v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	kind, ok := t.ColumnKindOf(column)
	if !ok {
		return v
	}
	switch kind {
	case models.KindBool:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case models.KindReal:
		if n, ok := v.(int64); ok {
			return float64(n)
		}
	}
	return v
}

// queuePayloadJSON marshals a payload row for queue storage.
func queuePayloadJSON(payload models.Row) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrDatabase, "failed to encode queue payload", err)
	}
	return string(data), nil
}
