// Package network provides the single source of truth for device
// connectivity.
package network

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/karkhana/billsync/internal/logging"
)

// Status describes the current connectivity state.
type Status struct {
	Connected      bool   `json:"connected"`
	ConnectionKind string `json:"connection_kind"`
}

// Prober checks reachability of the platform's connectivity signal.
// The default implementation probes the remote backend's health
// endpoint; tests substitute a fake.
type Prober interface {
	Probe(ctx context.Context) Status
}

// HTTPProber probes an HTTP endpoint with a HEAD request.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) Status {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return Status{Connected: false}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Status{Connected: false}
	}
	resp.Body.Close()

	return Status{Connected: resp.StatusCode < 500, ConnectionKind: "http"}
}

// Monitor polls a Prober and fans out status transitions to
// subscribers. Every transition is delivered to all subscribers, in
// the order it was observed.
type Monitor struct {
	prober   Prober
	interval time.Duration

	mu      sync.Mutex
	status  Status
	subs    map[int]func(Status)
	nextSub int
	waitCh  chan struct{} // closed while online
	started bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a Monitor polling the prober at the given
// interval.
func NewMonitor(prober Prober, interval time.Duration) *Monitor {
	m := &Monitor{
		prober:   prober,
		interval: interval,
		subs:     make(map[int]func(Status)),
		waitCh:   make(chan struct{}),
		stopCh:   make(chan struct{}),
	}
	return m
}

// Initialize reads the current connectivity and starts the poll loop.
func (m *Monitor) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.apply(m.prober.Probe(ctx))

	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop halts the poll loop and waits for it to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.apply(m.prober.Probe(ctx))
		}
	}
}

// Refresh probes immediately instead of waiting for the next tick.
// Used before explicit sync calls so NETWORK_UNAVAILABLE reflects the
// present, not the last poll.
func (m *Monitor) Refresh(ctx context.Context) Status {
	status := m.prober.Probe(ctx)
	m.apply(status)
	return status
}

// apply records a probe result and notifies subscribers on transition.
func (m *Monitor) apply(status Status) {
	m.mu.Lock()
	prev := m.status
	m.status = status

	var callbacks []func(Status)
	if prev.Connected != status.Connected {
		if status.Connected {
			close(m.waitCh)
		} else {
			m.waitCh = make(chan struct{})
		}

		ids := make([]int, 0, len(m.subs))
		for id := range m.subs {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			callbacks = append(callbacks, m.subs[id])
		}
	}
	m.mu.Unlock()

	if len(callbacks) > 0 {
		logging.Info("Connectivity changed", map[string]interface{}{
			"connected": status.Connected,
			"kind":      status.ConnectionKind,
		})
		for _, cb := range callbacks {
			cb(status)
		}
	}
}

// IsOnline returns whether the device is currently connected.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Connected
}

// GetStatus returns the current connectivity status.
func (m *Monitor) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// OnStatusChange registers a callback invoked on every transition.
// The returned function unsubscribes.
func (m *Monitor) OnStatusChange(cb func(Status)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = cb
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// WaitForOnline blocks until the device is online or the timeout
// elapses. Returns true when online. Callers use this to block briefly
// rather than queue indefinitely.
func (m *Monitor) WaitForOnline(timeout time.Duration) bool {
	m.mu.Lock()
	if m.status.Connected {
		m.mu.Unlock()
		return true
	}
	ch := m.waitCh
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}
