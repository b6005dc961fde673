// Package remap propagates server-assigned identifiers through every
// place a locally-minted identifier appeared.
package remap

import (
	"fmt"

	"github.com/karkhana/billsync/internal/logging"
	"github.com/karkhana/billsync/internal/models"
	"github.com/karkhana/billsync/internal/store"
)

// Remapper rewrites a locally-minted id to a server-assigned one
// across the owning record, dependent records, and not-yet-uploaded
// queue payloads.
type Remapper struct {
	store *store.Store
}

// NewRemapper creates a Remapper over the local store.
func NewRemapper(s *store.Store) *Remapper {
	return &Remapper{store: s}
}

// Remap performs the three rewrite steps in order: the owning row's
// primary key, every registered dependent foreign-key column, and all
// pending queue payloads. Each step is independently idempotent, so a
// crash between steps is repaired by re-running with the same
// arguments.
//
// Applies only on the upload path for CREATEs, when the remote backend
// assigned an id different from the local one.
func (r *Remapper) Remap(tableName, oldID, newID string) error {
	if oldID == newID || oldID == "" || newID == "" {
		return nil
	}

	if err := r.store.ReplaceLocalID(tableName, oldID, newID); err != nil {
		return fmt.Errorf("failed to replace id on %s: %w", tableName, err)
	}

	for _, dep := range models.DependentsOf(tableName) {
		if err := r.store.UpdateForeignKey(dep.Table, dep.Column, oldID, newID); err != nil {
			return fmt.Errorf("failed to rewrite %s.%s: %w", dep.Table, dep.Column, err)
		}
	}

	remapped, err := r.store.RemapIDsInQueue(oldID, newID)
	if err != nil {
		return fmt.Errorf("failed to rewrite queue payloads: %w", err)
	}

	logging.Info("Identifier remapped", map[string]interface{}{
		"table":           tableName,
		"old_id":          oldID,
		"new_id":          newID,
		"queue_rewritten": remapped,
	})
	return nil
}
