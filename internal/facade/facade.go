// Package facade is the single entry point the UI layer talks to. It
// hides the store/queue/engine split: callers create, update, and read
// entities by logical name and never see connectivity.
package facade

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/karkhana/billsync/internal/apperrors"
	"github.com/karkhana/billsync/internal/logging"
	"github.com/karkhana/billsync/internal/models"
	"github.com/karkhana/billsync/internal/network"
	"github.com/karkhana/billsync/internal/store"
	syncpkg "github.com/karkhana/billsync/internal/sync"
)

// Facade exposes offline-first CRUD over logical entity names. Every
// mutation commits locally first and returns immediately; upload
// happens opportunistically in the background when the device is
// online.
type Facade struct {
	store       *store.Store
	engine      *syncpkg.Engine
	monitor     *network.Monitor
	initialized bool
}

// New creates a Facade. Initialize must be called before any other
// method.
func New(s *store.Store, engine *syncpkg.Engine, monitor *network.Monitor) *Facade {
	return &Facade{store: s, engine: engine, monitor: monitor}
}

// Initialize applies schema migrations and marks the facade ready.
func (f *Facade) Initialize() error {
	if err := f.store.Initialize(); err != nil {
		return err
	}
	f.initialized = true
	return nil
}

func (f *Facade) ready() error {
	if !f.initialized {
		return apperrors.New(apperrors.ErrNotInitialized, "storage not initialized, call Initialize first")
	}
	return nil
}

// resolve maps a logical entity name to its registry entry.
func resolve(entity string) (models.Table, error) {
	t, ok := models.TableByLogical(entity)
	if !ok {
		return models.Table{}, apperrors.Newf(apperrors.ErrValidation, "unknown entity %q", entity)
	}
	return t, nil
}

// Create validates and persists a new entity record. The returned id is
// usable immediately, whether or not the device is online.
func (f *Facade) Create(ctx context.Context, entity string, data models.Row) (string, error) {
	if err := f.ready(); err != nil {
		return "", err
	}
	t, err := resolve(entity)
	if err != nil {
		return "", err
	}

	clean, err := coerce(t, data)
	if err != nil {
		return "", err
	}

	id, err := f.store.Insert(t.Physical, clean)
	if err != nil {
		return "", err
	}

	f.syncSoon(ctx)
	return id, nil
}

// Update validates and applies a partial update to an entity record.
func (f *Facade) Update(ctx context.Context, entity, id string, partial models.Row) error {
	if err := f.ready(); err != nil {
		return err
	}
	t, err := resolve(entity)
	if err != nil {
		return err
	}

	clean, err := coerce(t, partial)
	if err != nil {
		return err
	}
	if len(clean) == 0 {
		return apperrors.New(apperrors.ErrValidation, "no fields to update")
	}

	if err := f.store.Update(t.Physical, id, clean); err != nil {
		return err
	}

	f.syncSoon(ctx)
	return nil
}

// Remove deletes an entity record.
func (f *Facade) Remove(ctx context.Context, entity, id string) error {
	if err := f.ready(); err != nil {
		return err
	}
	t, err := resolve(entity)
	if err != nil {
		return err
	}

	if err := f.store.Delete(t.Physical, id); err != nil {
		return err
	}

	f.syncSoon(ctx)
	return nil
}

// FindByID returns one entity record by id.
func (f *Facade) FindByID(entity, id string) (models.Row, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}
	t, err := resolve(entity)
	if err != nil {
		return nil, err
	}
	return f.store.FindByID(t.Physical, id)
}

// FindAll returns all records of an entity in insertion order.
func (f *Facade) FindAll(entity string) ([]models.Row, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}
	t, err := resolve(entity)
	if err != nil {
		return nil, err
	}
	return f.store.FindAll(t.Physical)
}

// Refresh pulls the latest remote state for the named entities, or all
// of them when none are given. Requires connectivity.
func (f *Facade) Refresh(ctx context.Context, entities ...string) error {
	if err := f.ready(); err != nil {
		return err
	}

	var tables []string
	for _, entity := range entities {
		t, err := resolve(entity)
		if err != nil {
			return err
		}
		tables = append(tables, t.Physical)
	}

	_, err := f.engine.DownloadLatestData(ctx, tables...)
	return err
}

// SyncNow runs a full upload pass and waits for it.
func (f *Facade) SyncNow(ctx context.Context) (*syncpkg.Result, error) {
	if err := f.ready(); err != nil {
		return nil, err
	}
	return f.engine.StartSync(ctx)
}

// IsOnline reports current connectivity.
func (f *Facade) IsOnline() bool {
	return f.monitor.IsOnline()
}

// syncSoon kicks off a background upload pass after a local mutation.
// Offline is the normal case here, not an error.
func (f *Facade) syncSoon(ctx context.Context) {
	if !f.monitor.IsOnline() {
		logging.Debug("Mutation queued while offline", nil)
		return
	}
	f.engine.TriggerAsync(ctx)
}

// coerce validates data against the table's declared columns and
// normalizes each value to its column kind. Unknown fields are
// rejected rather than dropped, so client typos surface as errors
// instead of silently missing data.
func coerce(t models.Table, data models.Row) (models.Row, error) {
	clean := make(models.Row, len(data))
	for name, value := range data {
		if name == "id" {
			if s, ok := value.(string); ok && s != "" {
				clean["id"] = s
			}
			continue
		}
		kind, ok := t.ColumnKindOf(name)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrValidation, "%s has no field %q", t.Logical, name)
		}

		coerced, err := coerceValue(kind, value)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrValidation, "field %q: %v", name, err)
		}
		clean[name] = coerced
	}
	return clean, nil
}

func coerceValue(kind models.ColumnKind, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch kind {
	case models.KindText:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil

	case models.KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		case string:
			parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", n)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("cannot use %T as integer", v)

	case models.KindReal:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", n)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("cannot use %T as number", v)

	case models.KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case float64:
			return b != 0, nil
		case int:
			return b != 0, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("%q is not a boolean", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("cannot use %T as boolean", v)

	case models.KindDate:
		switch d := v.(type) {
		case time.Time:
			return d.UTC().Format(time.RFC3339), nil
		case string:
			trimmed := strings.TrimSpace(d)
			if _, err := time.Parse(time.RFC3339, trimmed); err == nil {
				return trimmed, nil
			}
			if day, err := time.Parse("2006-01-02", trimmed); err == nil {
				return day.UTC().Format(time.RFC3339), nil
			}
			return nil, fmt.Errorf("%q is not a date", d)
		}
		return nil, fmt.Errorf("cannot use %T as date", v)
	}

	return v, nil
}
