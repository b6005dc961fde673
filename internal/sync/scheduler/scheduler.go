// Package scheduler provides background sync scheduling: periodic
// passes while online and an immediate pass when connectivity returns.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/karkhana/billsync/internal/apperrors"
	"github.com/karkhana/billsync/internal/logging"
	"github.com/karkhana/billsync/internal/network"
	syncpkg "github.com/karkhana/billsync/internal/sync"
)

// Scheduler drives the sync engine on a timer and on connectivity
// transitions. It never syncs while offline; the reconnect callback is
// what drains the queue built up during an outage.
type Scheduler struct {
	engine   *syncpkg.Engine
	monitor  *network.Monitor
	interval time.Duration

	stopCh      chan struct{}
	wg          sync.WaitGroup
	unsubscribe func()

	mu           sync.RWMutex
	isRunning    bool
	lastSyncTime time.Time
}

// Config holds scheduler configuration.
type Config struct {
	// Interval is how often to sync when online.
	Interval time.Duration
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{Interval: 15 * time.Minute}
}

// NewScheduler creates a Scheduler over the engine and the
// connectivity monitor.
func NewScheduler(engine *syncpkg.Engine, monitor *network.Monitor, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		engine:   engine,
		monitor:  monitor,
		interval: config.Interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic loop and subscribes to connectivity
// transitions so a reconnect triggers an immediate pass.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.unsubscribe = s.monitor.OnStatusChange(func(status network.Status) {
		if !status.Connected {
			return
		}
		logging.Info("Connectivity restored, triggering sync", nil)
		go s.runSync(ctx)
	})

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info("Background sync scheduler started",
		map[string]interface{}{"interval_minutes": s.interval.Minutes()})
}

// Stop halts the loop and unsubscribes from connectivity events. An
// in-flight pass finishes on its own; Stop does not wait for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Background sync scheduler stopped", nil)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.monitor.IsOnline() {
				logging.Debug("Skipping periodic sync while offline", nil)
				continue
			}
			go s.runSync(ctx)
		}
	}
}

// runSync executes one upload pass followed by a download pass.
func (s *Scheduler) runSync(ctx context.Context) {
	if s.engine.IsSyncing() {
		logging.Debug("Sync already in progress, skipping", nil)
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	result, err := s.engine.StartSync(syncCtx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSyncInProgress) {
			return
		}
		logging.ErrorWithCode("Periodic sync failed", string(apperrors.CodeOf(err)), err,
			map[string]interface{}{"interval_minutes": s.interval.Minutes()})
		return
	}

	if _, err := s.engine.DownloadLatestData(syncCtx); err != nil {
		logging.ErrorWithCode("Periodic download failed", string(apperrors.CodeOf(err)), err)
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	s.mu.Unlock()

	logging.Info("Periodic sync completed",
		map[string]interface{}{
			"uploaded": result.Uploaded,
			"failed":   result.Failed,
			"purged":   result.Purged,
		})
}

// TriggerSync requests an immediate pass. Returns false when a pass is
// already in progress or the device is offline.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	if s.engine.IsSyncing() || !s.monitor.IsOnline() {
		return false
	}
	go s.runSync(ctx)
	return true
}

// Status reports the scheduler's current state.
type Status struct {
	IsRunning    bool       `json:"is_running"`
	IsOnline     bool       `json:"is_online"`
	SyncActive   bool       `json:"sync_active"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
}

func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		IsRunning:  s.isRunning,
		IsOnline:   s.monitor.IsOnline(),
		SyncActive: s.engine.IsSyncing(),
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	return status
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
