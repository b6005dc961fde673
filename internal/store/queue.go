// Package store implements the durable local mirror of the remote
// schema plus the append-only mutation queue.
package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/karkhana/billsync/internal/apperrors"
	"github.com/karkhana/billsync/internal/models"
)

// enqueueTx appends one queue entry inside the caller's transaction, so
// the entity write and its mutation record commit or roll back as one.
func enqueueTx(tx *sql.Tx, tableName string, op models.Operation, payload models.Row, now int64) error {
	data, err := queuePayloadJSON(payload)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO sync_queue (id, table_name, operation, payload, sync_status, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, '', ?, ?)`,
		uuid.New().String(), tableName, string(op), data, string(models.SyncStatusPending), now, now,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to append queue entry", err)
	}
	return nil
}

// PendingQueueItems returns all pending entries oldest-first. The rowid
// tiebreak preserves insertion order for entries created within the
// same second.
func (s *Store) PendingQueueItems() ([]models.QueueEntry, error) {
	return s.queueItems(models.SyncStatusPending)
}

// FailedQueueItems returns retained failed entries oldest-first, for
// inspection and manual retry.
func (s *Store) FailedQueueItems() ([]models.QueueEntry, error) {
	return s.queueItems(models.SyncStatusFailed)
}

// QueueItem returns one queue entry by id, whatever its status. The
// engine reads each entry fresh immediately before dispatch: an
// identifier remap earlier in the same pass rewrites payloads in
// place, and a snapshot taken at pass start would miss that.
func (s *Store) QueueItem(queueID string) (models.QueueEntry, error) {
	var (
		e       models.QueueEntry
		payload string
	)
	err := s.db.QueryRow(`
		SELECT id, table_name, operation, payload, sync_status, attempts, last_error, created_at, updated_at
		FROM sync_queue WHERE id = ?`, queueID,
	).Scan(&e.ID, &e.TableName, &e.Operation, &payload, &e.SyncStatus,
		&e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.QueueEntry{}, apperrors.Newf(apperrors.ErrNotFound, "sync_queue: no entry %s", queueID)
	}
	if err != nil {
		return models.QueueEntry{}, apperrors.Wrap(apperrors.ErrDatabase, "failed to load queue entry", err)
	}
	e.Payload = []byte(payload)
	return e, nil
}

func (s *Store) queueItems(status models.SyncStatus) ([]models.QueueEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, table_name, operation, payload, sync_status, attempts, last_error, created_at, updated_at
		FROM sync_queue WHERE sync_status = ? ORDER BY created_at, rowid`,
		string(status),
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to query sync_queue", err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		var (
			e       models.QueueEntry
			payload string
		)
		if err := rows.Scan(&e.ID, &e.TableName, &e.Operation, &payload, &e.SyncStatus,
			&e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan queue entry", err)
		}
		e.Payload = []byte(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "queue iteration failed", err)
	}
	return entries, nil
}

// MarkQueueSynced transitions one entry to synced. Synced entries are
// removed later by PurgeSyncedQueue, never inline, so a crash between
// upload and purge loses no bookkeeping.
func (s *Store) MarkQueueSynced(queueID string) error {
	return s.markQueue(queueID, models.SyncStatusSynced, "")
}

// MarkQueueFailed transitions one entry to failed and records the
// error. Failed entries are retained; they are never purged
// automatically.
func (s *Store) MarkQueueFailed(queueID, lastError string) error {
	return s.markQueue(queueID, models.SyncStatusFailed, lastError)
}

func (s *Store) markQueue(queueID string, status models.SyncStatus, lastError string) error {
	res, err := s.db.Exec(`
		UPDATE sync_queue
		SET sync_status = ?, last_error = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ?`,
		string(status), lastError, time.Now().Unix(), queueID,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update queue entry", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrNotFound, "sync_queue: no entry %s", queueID)
	}
	return nil
}

// RetryFailedQueue resets all failed entries to pending and returns how
// many were reset.
func (s *Store) RetryFailedQueue() (int, error) {
	res, err := s.db.Exec(`
		UPDATE sync_queue SET sync_status = ?, last_error = '', updated_at = ?
		WHERE sync_status = ?`,
		string(models.SyncStatusPending), time.Now().Unix(), string(models.SyncStatusFailed),
	)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to reset failed entries", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// PurgeSyncedQueue removes synced entries as a separate compaction
// step and returns how many were purged.
func (s *Store) PurgeSyncedQueue() (int, error) {
	res, err := s.db.Exec(`DELETE FROM sync_queue WHERE sync_status = ?`, string(models.SyncStatusSynced))
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to purge synced entries", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// QueueCounts returns the number of entries per status, for the
// pending/failed indicators the UI must always be able to show.
func (s *Store) QueueCounts() (map[models.SyncStatus]int, error) {
	rows, err := s.db.Query(`SELECT sync_status, COUNT(*) FROM sync_queue GROUP BY sync_status`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to count queue entries", err)
	}
	defer rows.Close()

	counts := map[models.SyncStatus]int{
		models.SyncStatusPending: 0,
		models.SyncStatusSynced:  0,
		models.SyncStatusFailed:  0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan queue count", err)
		}
		counts[models.SyncStatus(status)] = n
	}
	return counts, rows.Err()
}

// RemapIDsInQueue rewrites every occurrence of oldID in pending queue
// payloads, both as the row id and in any registered foreign-key
// position, so not-yet-uploaded mutations refer to the server-assigned
// identifier. Idempotent: a payload already carrying newID is left
// untouched.
func (s *Store) RemapIDsInQueue(oldID, newID string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id, table_name, payload FROM sync_queue
		WHERE sync_status = ? ORDER BY created_at, rowid`,
		string(models.SyncStatusPending),
	)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to query pending entries", err)
	}

	type patch struct {
		queueID string
		payload string
	}
	var patches []patch

	for rows.Next() {
		var queueID, tableName, payload string
		if err := rows.Scan(&queueID, &tableName, &payload); err != nil {
			rows.Close()
			return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to scan queue entry", err)
		}

		entry := models.QueueEntry{TableName: tableName, Payload: []byte(payload)}
		row, err := entry.DecodePayload()
		if err != nil {
			rows.Close()
			return 0, apperrors.Wrap(apperrors.ErrDatabase, "corrupt queue payload", err)
		}

		changed := false
		if row.ID() == oldID {
			row["id"] = newID
			changed = true
		}
		for _, col := range models.ForeignKeyColumns(tableName) {
			if v, ok := row[col].(string); ok && v == oldID {
				row[col] = newID
				changed = true
			}
		}
		if !changed {
			continue
		}

		data, err := queuePayloadJSON(row)
		if err != nil {
			rows.Close()
			return 0, err
		}
		patches = append(patches, patch{queueID: queueID, payload: data})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "queue iteration failed", err)
	}
	rows.Close()

	now := time.Now().Unix()
	for _, p := range patches {
		if _, err := tx.Exec(
			`UPDATE sync_queue SET payload = ?, updated_at = ? WHERE id = ?`,
			p.payload, now, p.queueID,
		); err != nil {
			return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to rewrite queue payload", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to commit queue remap", err)
	}
	return len(patches), nil
}
