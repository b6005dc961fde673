package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/karkhana/billsync/internal/db"
	"github.com/karkhana/billsync/internal/network"
	"github.com/karkhana/billsync/internal/remote"
	"github.com/karkhana/billsync/internal/store"
	syncpkg "github.com/karkhana/billsync/internal/sync"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()

	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	s, err := store.New(database)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	monitor := network.NewMonitor(&network.HTTPProber{URL: "http://127.0.0.1:1"}, time.Hour)
	engine := syncpkg.NewEngine(s, remote.NewMemory(), monitor)
	return NewScheduler(engine, monitor, &Config{Interval: time.Hour})
}

func TestSchedulerStartStop(t *testing.T) {
	sched := newTestScheduler(t)

	sched.Start(context.Background())
	if !sched.IsRunning() {
		t.Error("expected running after Start")
	}

	// Double start is a no-op.
	sched.Start(context.Background())

	sched.Stop()
	if sched.IsRunning() {
		t.Error("expected stopped after Stop")
	}

	// Double stop must not panic.
	sched.Stop()
}

func TestTriggerSyncRefusedOffline(t *testing.T) {
	sched := newTestScheduler(t)

	if sched.TriggerSync(context.Background()) {
		t.Error("expected trigger refused while offline")
	}
}

func TestSchedulerStatus(t *testing.T) {
	sched := newTestScheduler(t)

	status := sched.GetStatus()
	if status.IsRunning || status.IsOnline || status.SyncActive {
		t.Errorf("unexpected initial status: %+v", status)
	}
	if status.LastSyncTime != nil {
		t.Error("no sync has run yet")
	}
}

func TestSchedulerDefaults(t *testing.T) {
	if DefaultConfig().Interval != 15*time.Minute {
		t.Errorf("unexpected default interval %v", DefaultConfig().Interval)
	}

	sched := NewScheduler(nil, nil, nil)
	if sched.interval != 15*time.Minute {
		t.Errorf("nil config must fall back to defaults, got %v", sched.interval)
	}
}
