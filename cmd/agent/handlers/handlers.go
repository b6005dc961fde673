// Package handlers provides the REST API the desktop UI talks to:
// entity CRUD through the facade, sync triggers, and queue inspection.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/karkhana/billsync/internal/apperrors"
	"github.com/karkhana/billsync/internal/facade"
	"github.com/karkhana/billsync/internal/models"
	"github.com/karkhana/billsync/internal/network"
	"github.com/karkhana/billsync/internal/store"
	"github.com/karkhana/billsync/internal/sync/scheduler"
)

// API bundles the handler dependencies.
type API struct {
	Facade    *facade.Facade
	Store     *store.Store
	Monitor   *network.Monitor
	Scheduler *scheduler.Scheduler
}

// Register mounts all routes on the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.Health)
	mux.HandleFunc("GET /api/status", a.Status)

	mux.HandleFunc("POST /api/sync", a.SyncNow)
	mux.HandleFunc("POST /api/download", a.Download)

	mux.HandleFunc("GET /api/queue", a.QueueCounts)
	mux.HandleFunc("GET /api/queue/failed", a.FailedQueue)
	mux.HandleFunc("POST /api/queue/retry", a.RetryQueue)

	mux.HandleFunc("GET /api/entities/{entity}", a.List)
	mux.HandleFunc("POST /api/entities/{entity}", a.Create)
	mux.HandleFunc("GET /api/entities/{entity}/{id}", a.Get)
	mux.HandleFunc("PATCH /api/entities/{entity}/{id}", a.Update)
	mux.HandleFunc("DELETE /api/entities/{entity}/{id}", a.Remove)
}

// Health handles GET /api/health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "billsync-agent",
	})
}

// Status handles GET /api/status: connectivity, scheduler state, and
// queue depth in one call for the UI status bar.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := a.Store.QueueCounts()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"network":   a.Monitor.GetStatus(),
		"scheduler": a.Scheduler.GetStatus(),
		"queue":     counts,
	})
}

// SyncNow handles POST /api/sync: runs an upload pass and waits.
func (a *API) SyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := a.Facade.SyncNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uploaded": result.Uploaded,
		"failed":   result.Failed,
		"purged":   result.Purged,
		"duration": result.EndTime.Sub(result.StartTime).Milliseconds(),
	})
}

// Download handles POST /api/download. The optional body names the
// entities to refresh; an empty body refreshes everything.
func (a *API) Download(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Entities []string `json:"entities"`
	}
	if r.Body != nil {
		// An empty body is a full refresh, not an error.
		_ = json.NewDecoder(r.Body).Decode(&request)
	}

	if err := a.Facade.Refresh(r.Context(), request.Entities...); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "completed"})
}

// QueueCounts handles GET /api/queue.
func (a *API) QueueCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := a.Store.QueueCounts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// FailedQueue handles GET /api/queue/failed: the entries a user may
// want to inspect before retrying.
func (a *API) FailedQueue(w http.ResponseWriter, r *http.Request) {
	items, err := a.Store.FailedQueueItems()
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []models.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, items)
}

// RetryQueue handles POST /api/queue/retry: failed entries go back to
// pending and the next pass picks them up.
func (a *API) RetryQueue(w http.ResponseWriter, r *http.Request) {
	retried, err := a.Store.RetryFailedQueue()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"retried": retried})
}

// List handles GET /api/entities/{entity}.
func (a *API) List(w http.ResponseWriter, r *http.Request) {
	rows, err := a.Facade.FindAll(r.PathValue("entity"))
	if err != nil {
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []models.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// Create handles POST /api/entities/{entity}.
func (a *API) Create(w http.ResponseWriter, r *http.Request) {
	var data models.Row
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"code": string(apperrors.ErrValidation), "message": "invalid request body",
		})
		return
	}

	id, err := a.Facade.Create(r.Context(), r.PathValue("entity"), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

// Get handles GET /api/entities/{entity}/{id}.
func (a *API) Get(w http.ResponseWriter, r *http.Request) {
	row, err := a.Facade.FindByID(r.PathValue("entity"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// Update handles PATCH /api/entities/{entity}/{id}.
func (a *API) Update(w http.ResponseWriter, r *http.Request) {
	var partial models.Row
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"code": string(apperrors.ErrValidation), "message": "invalid request body",
		})
		return
	}

	if err := a.Facade.Update(r.Context(), r.PathValue("entity"), r.PathValue("id"), partial); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "updated"})
}

// Remove handles DELETE /api/entities/{entity}/{id}.
func (a *API) Remove(w http.ResponseWriter, r *http.Request) {
	if err := a.Facade.Remove(r.Context(), r.PathValue("entity"), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps application error codes to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	case apperrors.ErrValidation, apperrors.ErrInvalid:
		status = http.StatusBadRequest
	case apperrors.ErrNetworkUnavailable:
		status = http.StatusServiceUnavailable
	case apperrors.ErrSyncInProgress:
		status = http.StatusConflict
	case apperrors.ErrNotInitialized:
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"code":    string(code),
		"message": err.Error(),
	})
}
