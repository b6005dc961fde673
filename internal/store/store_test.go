package store

import (
	"testing"

	"github.com/karkhana/billsync/internal/apperrors"
	"github.com/karkhana/billsync/internal/db"
	"github.com/karkhana/billsync/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, _ := newTestStoreAt(t, t.TempDir())
	return s
}

// newTestStoreAt opens a store over a specific directory so tests can
// close and reopen the same database.
func newTestStoreAt(t *testing.T, dir string) (*Store, *db.DB) {
	t.Helper()

	database, err := db.Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	s, err := New(database)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return s, database
}

func TestInsertMintsIDAndQueues(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Insert("customers", models.Row{"name": "Ravi Traders", "opening_balance": 1500.0})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a minted id")
	}

	row, err := s.FindByID("customers", id)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if row["sync_status"] != string(models.SyncStatusPending) {
		t.Errorf("expected pending row, got %v", row["sync_status"])
	}
	if row["opening_balance"] != 1500.0 {
		t.Errorf("expected opening_balance 1500, got %v", row["opening_balance"])
	}

	pending, err := s.PendingQueueItems()
	if err != nil {
		t.Fatalf("PendingQueueItems failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 queue entry, got %d", len(pending))
	}
	if pending[0].Operation != models.OperationCreate {
		t.Errorf("expected CREATE, got %s", pending[0].Operation)
	}
	payload, err := pending[0].DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if payload.ID() != id {
		t.Errorf("queue payload id %q does not match row id %q", payload.ID(), id)
	}
}

func TestInsertHonorsCallerID(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Insert("items", models.Row{"id": "itm-1", "name": "Cement", "rate": 420.0})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id != "itm-1" {
		t.Errorf("expected caller id to be kept, got %q", id)
	}
}

func TestUpdateForcesPendingAndQueues(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Insert("customers", models.Row{"name": "Ravi Traders"})
	if err := s.Update("customers", id, models.Row{"phone": "9876543210"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	row, _ := s.FindByID("customers", id)
	if row["phone"] != "9876543210" {
		t.Errorf("expected phone updated, got %v", row["phone"])
	}
	if row["sync_status"] != string(models.SyncStatusPending) {
		t.Errorf("expected pending after update, got %v", row["sync_status"])
	}

	pending, _ := s.PendingQueueItems()
	if len(pending) != 2 {
		t.Fatalf("expected CREATE and UPDATE entries, got %d", len(pending))
	}
	if pending[1].Operation != models.OperationUpdate {
		t.Errorf("expected UPDATE, got %s", pending[1].Operation)
	}
}

func TestUpdateMissingRowReturnsNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.Update("customers", "no-such-id", models.Row{"name": "x"})
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}

	// The failed update must not leave a queue entry behind.
	pending, _ := s.PendingQueueItems()
	if len(pending) != 0 {
		t.Errorf("expected empty queue, got %d entries", len(pending))
	}
}

func TestDeleteRemovesRowAndQueues(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Insert("items", models.Row{"name": "Cement"})
	if err := s.Delete("items", id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := s.FindByID("items", id); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND after delete, got %v", err)
	}

	pending, _ := s.PendingQueueItems()
	if len(pending) != 2 {
		t.Fatalf("expected CREATE and DELETE entries, got %d", len(pending))
	}
	last := pending[len(pending)-1]
	if last.Operation != models.OperationDelete {
		t.Errorf("expected DELETE, got %s", last.Operation)
	}
	payload, _ := last.DecodePayload()
	if payload.ID() != id {
		t.Errorf("delete payload id %q does not match %q", payload.ID(), id)
	}
}

func TestLocalVariantsSkipQueue(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertLocal("customers", models.Row{"id": "srv-1", "name": "Remote Customer"})
	if err != nil {
		t.Fatalf("InsertLocal failed: %v", err)
	}
	if id != "srv-1" {
		t.Errorf("expected srv-1, got %q", id)
	}

	row, _ := s.FindByID("customers", id)
	if row["sync_status"] != string(models.SyncStatusSynced) {
		t.Errorf("expected synced, got %v", row["sync_status"])
	}

	if err := s.UpdateLocal("customers", id, models.Row{"name": "Renamed"}); err != nil {
		t.Fatalf("UpdateLocal failed: %v", err)
	}
	row, _ = s.FindByID("customers", id)
	if row["sync_status"] != string(models.SyncStatusSynced) {
		t.Errorf("UpdateLocal must not flip sync_status, got %v", row["sync_status"])
	}

	pending, _ := s.PendingQueueItems()
	if len(pending) != 0 {
		t.Errorf("local writes must not queue, got %d entries", len(pending))
	}
}

func TestBoolRoundTrip(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.Insert("sales", models.Row{"bill_no": "B-1", "is_paid": true})
	row, err := s.FindByID("sales", id)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	paid, ok := row["is_paid"].(bool)
	if !ok || !paid {
		t.Errorf("expected is_paid true, got %v (%T)", row["is_paid"], row["is_paid"])
	}
}

func TestUnknownTableRejected(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Insert("invoices", models.Row{}); !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestReplaceLocalID(t *testing.T) {
	s := newTestStore(t)

	s.Insert("customers", models.Row{"id": "tmp-1", "name": "Ravi Traders"})

	if err := s.ReplaceLocalID("customers", "tmp-1", "srv-99"); err != nil {
		t.Fatalf("ReplaceLocalID failed: %v", err)
	}

	if _, err := s.FindByID("customers", "tmp-1"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("old id must be gone, got %v", err)
	}
	row, err := s.FindByID("customers", "srv-99")
	if err != nil {
		t.Fatalf("new id missing: %v", err)
	}
	if row["name"] != "Ravi Traders" {
		t.Errorf("row data lost in rename: %v", row["name"])
	}

	// Re-running the same replacement is a repair path, not an error.
	if err := s.ReplaceLocalID("customers", "tmp-1", "srv-99"); err != nil {
		t.Errorf("second ReplaceLocalID must be a no-op, got %v", err)
	}
}

func TestReplaceLocalIDDropsStaleDuplicate(t *testing.T) {
	s := newTestStore(t)

	// Both ids present: the download path inserted the server row before
	// the rename ran.
	s.Insert("customers", models.Row{"id": "tmp-1", "name": "Stale Local"})
	s.InsertLocal("customers", models.Row{"id": "srv-99", "name": "Server Copy"})

	if err := s.ReplaceLocalID("customers", "tmp-1", "srv-99"); err != nil {
		t.Fatalf("ReplaceLocalID failed: %v", err)
	}

	if _, err := s.FindByID("customers", "tmp-1"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("stale duplicate must be dropped, got %v", err)
	}
	row, _ := s.FindByID("customers", "srv-99")
	if row["name"] != "Server Copy" {
		t.Errorf("server copy must win, got %v", row["name"])
	}
}

func TestReplaceLocalIDNeitherIDPresent(t *testing.T) {
	s := newTestStore(t)

	err := s.ReplaceLocalID("customers", "ghost-a", "ghost-b")
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestUpdateForeignKey(t *testing.T) {
	s := newTestStore(t)

	s.Insert("entries", models.Row{"id": "e1", "customer_id": "tmp-1", "serial_no": "001"})
	s.Insert("entries", models.Row{"id": "e2", "customer_id": "other", "serial_no": "002"})

	if err := s.UpdateForeignKey("entries", "customer_id", "tmp-1", "srv-5"); err != nil {
		t.Fatalf("UpdateForeignKey failed: %v", err)
	}

	row, _ := s.FindByID("entries", "e1")
	if row["customer_id"] != "srv-5" {
		t.Errorf("expected rewritten fk, got %v", row["customer_id"])
	}
	row, _ = s.FindByID("entries", "e2")
	if row["customer_id"] != "other" {
		t.Errorf("unrelated fk must be untouched, got %v", row["customer_id"])
	}
}

func TestUpdateForeignKeyRejectsUnregisteredColumn(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateForeignKey("entries", "serial_no", "a", "b")
	if !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("expected INVALID_INPUT for unregistered column, got %v", err)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, database := newTestStoreAt(t, dir)
	id, err := s.Insert("customers", models.Row{"name": "Ravi Traders"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, _ := newTestStoreAt(t, dir)
	pending, err := reopened.PendingQueueItems()
	if err != nil {
		t.Fatalf("PendingQueueItems after reopen failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected queue to survive restart, got %d entries", len(pending))
	}
	payload, _ := pending[0].DecodePayload()
	if payload.ID() != id {
		t.Errorf("payload id %q does not match %q after reopen", payload.ID(), id)
	}
}
