// Package sync orchestrates the reconciliation between the local store
// and the remote backend: queue drain (upload), remote fetch
// (download), and the collision/remap handling in between.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/karkhana/billsync/internal/apperrors"
	"github.com/karkhana/billsync/internal/logging"
	"github.com/karkhana/billsync/internal/models"
	"github.com/karkhana/billsync/internal/network"
	"github.com/karkhana/billsync/internal/remote"
	"github.com/karkhana/billsync/internal/store"
	"github.com/karkhana/billsync/internal/sync/conflict"
	"github.com/karkhana/billsync/internal/sync/remap"
)

// State represents the engine's current phase.
type State string

const (
	StateIdle        State = "idle"
	StateUploading   State = "uploading"
	StateDownloading State = "downloading"
)

// Progress is the snapshot emitted after every item during upload and
// per table during download, so UI layers can render status without
// polling internal state.
type Progress struct {
	Phase       string `json:"phase"` // upload, download
	Table       string `json:"table,omitempty"`
	Total       int    `json:"total"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	InProgress  bool   `json:"in_progress"`
	CurrentItem string `json:"current_item,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Result summarizes one upload pass.
type Result struct {
	Uploaded  int
	Failed    int
	Purged    int
	StartTime time.Time
	EndTime   time.Time
}

// DownloadResult summarizes one download pass.
type DownloadResult struct {
	Inserted     int
	Updated      int
	Skipped      int
	FailedTables []string
}

// Engine is the stateful core of the sync subsystem. Only one pass
// (upload or download) may be in flight at a time; a second trigger
// while one is running is a no-op surfaced as SYNC_IN_PROGRESS.
// There is no mid-pass cancellation: a pass runs to completion over
// the item set it started with.
type Engine struct {
	store    *store.Store
	remote   remote.Client
	monitor  *network.Monitor
	resolver *conflict.Resolver
	remapper *remap.Remapper

	mu           sync.Mutex
	state        State
	inFlight     bool
	listeners    map[int]func(Progress)
	nextListener int
}

// NewEngine creates an Engine over the local store, the remote
// backend, and the connectivity monitor.
func NewEngine(s *store.Store, client remote.Client, monitor *network.Monitor) *Engine {
	return &Engine{
		store:     s,
		remote:    client,
		monitor:   monitor,
		resolver:  conflict.NewResolver(client),
		remapper:  remap.NewRemapper(s),
		state:     StateIdle,
		listeners: make(map[int]func(Progress)),
	}
}

// State returns the engine's current phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsSyncing reports whether a pass is in flight.
func (e *Engine) IsSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight
}

// OnProgress registers a progress listener. The returned function
// unsubscribes.
func (e *Engine) OnProgress(cb func(Progress)) func() {
	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = cb
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *Engine) emit(p Progress) {
	e.mu.Lock()
	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	callbacks := make([]func(Progress), 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, e.listeners[id])
	}
	e.mu.Unlock()

	for _, cb := range callbacks {
		cb(p)
	}
}

// begin claims the single-flight slot, or reports what is running.
func (e *Engine) begin(next State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		return apperrors.Newf(apperrors.ErrSyncInProgress, "sync already in progress (%s)", e.state)
	}
	e.inFlight = true
	e.state = next
	return nil
}

func (e *Engine) end() {
	e.mu.Lock()
	e.inFlight = false
	e.state = StateIdle
	e.mu.Unlock()
}

// StartSync drains the pending queue against the remote backend.
//
// Entries are processed oldest-first per entity table; within one
// table FIFO order preserves CREATE-before-UPDATE causality. A failed
// item is marked failed and the pass continues with the next entry —
// one bad row never blocks the rest of the queue. Synced entries are
// purged after the loop.
func (e *Engine) StartSync(ctx context.Context) (*Result, error) {
	if e.monitor != nil && !e.monitor.IsOnline() {
		return nil, apperrors.New(apperrors.ErrNetworkUnavailable, "cannot sync while offline")
	}

	if err := e.begin(StateUploading); err != nil {
		return nil, err
	}
	defer e.end()

	result := &Result{StartTime: time.Now()}
	defer func() { result.EndTime = time.Now() }()

	items, err := e.store.PendingQueueItems()
	if err != nil {
		return result, err
	}

	byTable := make(map[string][]models.QueueEntry)
	var tableOrder []string
	for _, item := range items {
		if _, ok := byTable[item.TableName]; !ok {
			tableOrder = append(tableOrder, item.TableName)
		}
		byTable[item.TableName] = append(byTable[item.TableName], item)
	}

	total := len(items)
	logging.Info("Upload pass started", map[string]interface{}{"pending": total})

	// Pass-start event: InProgress with no current item.
	e.emit(Progress{Phase: "upload", Total: total, InProgress: true})

	for _, tableName := range tableOrder {
		for _, item := range byTable[tableName] {
			e.emit(Progress{
				Phase:       "upload",
				Table:       tableName,
				Total:       total,
				Completed:   result.Uploaded,
				Failed:      result.Failed,
				InProgress:  true,
				CurrentItem: string(item.ID),
			})

			if err := e.uploadItem(ctx, item); err != nil {
				result.Failed++
				logging.ErrorWithCode("Queue item upload failed", string(apperrors.CodeOf(err)), err,
					map[string]interface{}{
						"queue_id":  string(item.ID),
						"table":     item.TableName,
						"operation": string(item.Operation),
					})
				if markErr := e.store.MarkQueueFailed(string(item.ID), err.Error()); markErr != nil {
					logging.Error("Failed to mark queue entry failed", markErr,
						map[string]interface{}{"queue_id": string(item.ID)})
				}
				continue
			}

			result.Uploaded++
			if markErr := e.store.MarkQueueSynced(string(item.ID)); markErr != nil {
				logging.Error("Failed to mark queue entry synced", markErr,
					map[string]interface{}{"queue_id": string(item.ID)})
			}
		}
	}

	purged, err := e.store.PurgeSyncedQueue()
	if err != nil {
		logging.Error("Queue compaction failed", err)
	}
	result.Purged = purged

	e.emit(Progress{
		Phase:     "upload",
		Total:     total,
		Completed: result.Uploaded,
		Failed:    result.Failed,
	})

	logging.Info("Upload pass finished", map[string]interface{}{
		"uploaded": result.Uploaded,
		"failed":   result.Failed,
		"purged":   result.Purged,
	})
	return result, nil
}

// uploadItem dispatches one queue entry to the remote backend. The
// entry is re-read from the queue first: a remap triggered by an
// earlier item in this pass rewrites pending payloads in place, and
// the snapshot taken at pass start would still carry the old id.
func (e *Engine) uploadItem(ctx context.Context, item models.QueueEntry) error {
	item, err := e.store.QueueItem(string(item.ID))
	if err != nil {
		return err
	}

	payload, err := item.DecodePayload()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "corrupt queue payload", err)
	}

	switch item.Operation {
	case models.OperationCreate:
		return e.uploadCreate(ctx, item.TableName, payload)
	case models.OperationUpdate:
		return e.uploadUpdate(ctx, item.TableName, payload)
	case models.OperationDelete:
		return e.uploadDelete(ctx, item.TableName, payload)
	default:
		return apperrors.Newf(apperrors.ErrInternal, "unknown queue operation %q", item.Operation)
	}
}

// uploadCreate runs the full CREATE path: sequence collision
// resolution, remote insert, identifier remapping when the server
// assigned its own id, and the local write-back that keeps the local
// copy aligned with what the remote accepted.
func (e *Engine) uploadCreate(ctx context.Context, tableName string, payload models.Row) error {
	localID := payload.ID()

	resolution, err := e.resolver.Resolve(ctx, tableName, payload)
	if err != nil {
		return err
	}

	stored, err := e.remote.Insert(ctx, tableName, resolution.Payload)
	if err != nil {
		if remote.IsRejection(err) {
			return apperrors.Wrap(apperrors.ErrRemoteRejected, "backend refused row", err)
		}
		return err
	}

	finalID := localID
	if serverID := stored.ID(); serverID != "" && serverID != localID {
		if err := e.remapper.Remap(tableName, localID, serverID); err != nil {
			return err
		}
		finalID = serverID
	}

	writeback := models.Row{"sync_status": string(models.SyncStatusSynced)}
	if resolution.Changed {
		writeback[resolution.Column] = resolution.Value
	}
	if err := e.store.UpdateLocal(tableName, finalID, writeback); err != nil {
		// The row may have been deleted locally since enqueue; the
		// remote copy stands on its own.
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (e *Engine) uploadUpdate(ctx context.Context, tableName string, payload models.Row) error {
	id := payload.ID()
	if id == "" {
		return apperrors.New(apperrors.ErrInternal, "update payload without id")
	}

	fields := payload.Clone()
	delete(fields, "id")

	if _, err := e.remote.Update(ctx, tableName, id, fields); err != nil {
		if remote.IsRejection(err) && !remote.IsNotFound(err) {
			return apperrors.Wrap(apperrors.ErrRemoteRejected, "backend refused update", err)
		}
		return err
	}

	if err := e.store.UpdateLocal(tableName, id, models.Row{"sync_status": string(models.SyncStatusSynced)}); err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (e *Engine) uploadDelete(ctx context.Context, tableName string, payload models.Row) error {
	id := payload.ID()
	if id == "" {
		return apperrors.New(apperrors.ErrInternal, "delete payload without id")
	}

	if err := e.remote.Delete(ctx, tableName, id); err != nil {
		// Already gone remotely; the intent is satisfied.
		if remote.IsNotFound(err) {
			return nil
		}
		if remote.IsRejection(err) {
			return apperrors.Wrap(apperrors.ErrRemoteRejected, "backend refused delete", err)
		}
		return err
	}
	return nil
}

// DownloadLatestData fetches authoritative remote state for the given
// tables (all registry tables when none are named) and reconciles it
// into the local mirror. A row whose local syncStatus is pending is
// never overwritten: a local edit must not be silently lost to a stale
// download. A failing table aborts only that table's fetch.
func (e *Engine) DownloadLatestData(ctx context.Context, tables ...string) (*DownloadResult, error) {
	if e.monitor != nil && !e.monitor.IsOnline() {
		return nil, apperrors.New(apperrors.ErrNetworkUnavailable, "cannot download while offline")
	}

	if err := e.begin(StateDownloading); err != nil {
		return nil, err
	}
	defer e.end()

	var targets []models.Table
	if len(tables) == 0 {
		targets = models.Tables
	} else {
		for _, name := range tables {
			t, ok := models.TableByPhysical(name)
			if !ok {
				return nil, apperrors.Newf(apperrors.ErrInvalid, "unknown table %q", name)
			}
			targets = append(targets, t)
		}
	}

	result := &DownloadResult{}
	var tableErrs []error

	for _, t := range targets {
		inserted, updated, skipped, err := e.downloadTable(ctx, t)
		result.Inserted += inserted
		result.Updated += updated
		result.Skipped += skipped

		progress := Progress{
			Phase:     "download",
			Table:     t.Physical,
			Completed: inserted + updated,
		}
		if err != nil {
			result.FailedTables = append(result.FailedTables, t.Physical)
			tableErrs = append(tableErrs, fmt.Errorf("%s: %w", t.Physical, err))
			progress.Error = err.Error()
			logging.ErrorWithCode("Table download failed", string(apperrors.ErrDownloadFailed), err,
				map[string]interface{}{"table": t.Physical})
		}
		e.emit(progress)
	}

	if len(tableErrs) > 0 {
		return result, apperrors.Wrap(apperrors.ErrDownloadFailed,
			fmt.Sprintf("download failed for %d of %d tables", len(tableErrs), len(targets)),
			errors.Join(tableErrs...))
	}

	logging.Info("Download pass finished", map[string]interface{}{
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"skipped":  result.Skipped,
	})
	return result, nil
}

// downloadTable fetches one table, bounded by its recency window for
// high-volume tables, and merges rows into the local mirror.
func (e *Engine) downloadTable(ctx context.Context, t models.Table) (inserted, updated, skipped int, err error) {
	q := remote.Query{Table: t.Physical}
	if t.DownloadWindowDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -t.DownloadWindowDays).Unix()
		q.Filters = append(q.Filters, remote.Gte("created_at", cutoff))
	}

	rows, err := e.remote.Select(ctx, q)
	if err != nil {
		return 0, 0, 0, err
	}

	for _, row := range rows {
		id := row.ID()
		if id == "" {
			continue
		}

		local, findErr := e.store.FindByID(t.Physical, id)
		switch {
		case apperrors.Is(findErr, apperrors.ErrNotFound):
			if _, insErr := e.store.InsertLocal(t.Physical, row); insErr != nil {
				return inserted, updated, skipped, insErr
			}
			inserted++
		case findErr != nil:
			return inserted, updated, skipped, findErr
		case local["sync_status"] == string(models.SyncStatusPending):
			skipped++
		default:
			fields := row.Clone()
			fields["sync_status"] = string(models.SyncStatusSynced)
			if updErr := e.store.UpdateLocal(t.Physical, id, fields); updErr != nil {
				return inserted, updated, skipped, updErr
			}
			updated++
		}
	}
	return inserted, updated, skipped, nil
}

// TriggerAsync submits an opportunistic sync pass to a background
// goroutine. Failures are logged and published through the progress
// stream, never thrown to the caller; an already-running pass makes
// this a no-op.
func (e *Engine) TriggerAsync(ctx context.Context) {
	if e.IsSyncing() {
		return
	}
	go func() {
		if _, err := e.StartSync(ctx); err != nil {
			if apperrors.Is(err, apperrors.ErrSyncInProgress) {
				return
			}
			logging.ErrorWithCode("Opportunistic sync failed", string(apperrors.CodeOf(err)), err)
			e.emit(Progress{Phase: "upload", Error: err.Error()})
		}
	}()
}
