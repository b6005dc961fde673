package store

import (
	"testing"

	"github.com/karkhana/billsync/internal/apperrors"
	"github.com/karkhana/billsync/internal/models"
)

func TestQueueFIFOOrder(t *testing.T) {
	s := newTestStore(t)

	// All inserted within the same second; the rowid tiebreak must keep
	// insertion order.
	ids := make([]string, 3)
	for i, name := range []string{"first", "second", "third"} {
		id, err := s.Insert("customers", models.Row{"name": name})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		ids[i] = id
	}

	pending, err := s.PendingQueueItems()
	if err != nil {
		t.Fatalf("PendingQueueItems failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(pending))
	}
	for i, entry := range pending {
		payload, _ := entry.DecodePayload()
		if payload.ID() != ids[i] {
			t.Errorf("position %d: expected %q, got %q", i, ids[i], payload.ID())
		}
	}
}

func TestMarkQueueTransitions(t *testing.T) {
	s := newTestStore(t)

	s.Insert("customers", models.Row{"name": "a"})
	s.Insert("customers", models.Row{"name": "b"})
	pending, _ := s.PendingQueueItems()

	if err := s.MarkQueueSynced(string(pending[0].ID)); err != nil {
		t.Fatalf("MarkQueueSynced failed: %v", err)
	}
	if err := s.MarkQueueFailed(string(pending[1].ID), "backend refused"); err != nil {
		t.Fatalf("MarkQueueFailed failed: %v", err)
	}

	counts, err := s.QueueCounts()
	if err != nil {
		t.Fatalf("QueueCounts failed: %v", err)
	}
	if counts[models.SyncStatusPending] != 0 || counts[models.SyncStatusSynced] != 1 || counts[models.SyncStatusFailed] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}

	failed, _ := s.FailedQueueItems()
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed entry, got %d", len(failed))
	}
	if failed[0].LastError != "backend refused" {
		t.Errorf("expected last error recorded, got %q", failed[0].LastError)
	}
	if failed[0].Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", failed[0].Attempts)
	}
}

func TestMarkQueueMissingEntry(t *testing.T) {
	s := newTestStore(t)

	if err := s.MarkQueueSynced("no-such-entry"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestRetryFailedQueue(t *testing.T) {
	s := newTestStore(t)

	s.Insert("customers", models.Row{"name": "a"})
	pending, _ := s.PendingQueueItems()
	s.MarkQueueFailed(string(pending[0].ID), "transient")

	retried, err := s.RetryFailedQueue()
	if err != nil {
		t.Fatalf("RetryFailedQueue failed: %v", err)
	}
	if retried != 1 {
		t.Errorf("expected 1 retried, got %d", retried)
	}

	pending, _ = s.PendingQueueItems()
	if len(pending) != 1 {
		t.Fatalf("expected entry back in pending, got %d", len(pending))
	}
	if pending[0].LastError != "" {
		t.Errorf("expected last error cleared, got %q", pending[0].LastError)
	}
}

func TestPurgeSyncedQueue(t *testing.T) {
	s := newTestStore(t)

	s.Insert("customers", models.Row{"name": "a"})
	s.Insert("customers", models.Row{"name": "b"})
	pending, _ := s.PendingQueueItems()
	s.MarkQueueSynced(string(pending[0].ID))

	purged, err := s.PurgeSyncedQueue()
	if err != nil {
		t.Fatalf("PurgeSyncedQueue failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged, got %d", purged)
	}

	// The still-pending entry must survive compaction.
	counts, _ := s.QueueCounts()
	if counts[models.SyncStatusPending] != 1 || counts[models.SyncStatusSynced] != 0 {
		t.Errorf("unexpected counts after purge: %v", counts)
	}
}

func TestRemapIDsInQueue(t *testing.T) {
	s := newTestStore(t)

	// A pending update of the row itself and a pending create that
	// references it as a foreign key.
	s.Insert("customers", models.Row{"id": "tmp-1", "name": "Ravi Traders"})
	s.Update("customers", "tmp-1", models.Row{"phone": "9876543210"})
	s.Insert("entries", models.Row{"id": "e1", "customer_id": "tmp-1", "serial_no": "001"})

	remapped, err := s.RemapIDsInQueue("tmp-1", "srv-9")
	if err != nil {
		t.Fatalf("RemapIDsInQueue failed: %v", err)
	}
	// CREATE customer, UPDATE customer, CREATE entry all carry tmp-1.
	if remapped != 3 {
		t.Errorf("expected 3 rewritten payloads, got %d", remapped)
	}

	pending, _ := s.PendingQueueItems()
	for _, entry := range pending {
		payload, _ := entry.DecodePayload()
		if payload.ID() == "tmp-1" {
			t.Errorf("entry %s still carries old id", entry.ID)
		}
		if v, ok := payload["customer_id"].(string); ok && v == "tmp-1" {
			t.Errorf("entry %s still references old id", entry.ID)
		}
	}

	// Idempotent: nothing left to rewrite.
	remapped, err = s.RemapIDsInQueue("tmp-1", "srv-9")
	if err != nil {
		t.Fatalf("second RemapIDsInQueue failed: %v", err)
	}
	if remapped != 0 {
		t.Errorf("expected no rewrites on second pass, got %d", remapped)
	}
}

func TestQueueItemSeesRemappedPayload(t *testing.T) {
	s := newTestStore(t)

	s.Insert("customers", models.Row{"id": "tmp-1", "name": "Ravi Traders"})
	s.Insert("entries", models.Row{"id": "e1", "customer_id": "tmp-1", "serial_no": "001"})

	// Snapshot before the rewrite, the way a drain pass loads entries.
	pending, err := s.PendingQueueItems()
	if err != nil {
		t.Fatalf("PendingQueueItems failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending entries, got %d", len(pending))
	}

	if _, err := s.RemapIDsInQueue("tmp-1", "srv-7"); err != nil {
		t.Fatalf("RemapIDsInQueue failed: %v", err)
	}

	// The snapshot still carries the old reference.
	stale, _ := pending[1].DecodePayload()
	if stale["customer_id"] != "tmp-1" {
		t.Fatalf("snapshot unexpectedly rewritten: %v", stale["customer_id"])
	}

	// A fresh read sees the rewrite.
	fresh, err := s.QueueItem(string(pending[1].ID))
	if err != nil {
		t.Fatalf("QueueItem failed: %v", err)
	}
	payload, _ := fresh.DecodePayload()
	if payload["customer_id"] != "srv-7" {
		t.Errorf("expected rewritten reference srv-7, got %v", payload["customer_id"])
	}
}

func TestQueueItemMissing(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.QueueItem("no-such-entry"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}
