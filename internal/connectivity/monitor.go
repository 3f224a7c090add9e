// Package connectivity tracks whether the alert store is reachable and
// announces online/offline transitions.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr1hm/go-lifeline/internal/feed"
)

// Prober checks reachability of the remote side.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor polls a Prober and publishes a value on every state change: true
// when connectivity returns, false when it is lost. It starts offline.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration

	online  atomic.Bool
	mu      sync.Mutex // serializes state transitions
	changes *feed.Broadcaster[bool]
	wg      sync.WaitGroup
}

func NewMonitor(prober Prober, interval, timeout time.Duration) *Monitor {
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		timeout:  timeout,
		changes:  feed.NewBroadcaster[bool](8),
	}
}

func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.runPoller(ctx)
}

func (m *Monitor) runPoller(ctx context.Context) {
	defer m.wg.Done()
	slog.Info("starting connectivity monitor", "interval", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("connectivity monitor shutting down")
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check probes once and returns the resulting state.
func (m *Monitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Ping(pctx)
	if err != nil && ctx.Err() != nil {
		// Shutting down; not evidence of an outage.
		return m.Online()
	}
	if err != nil {
		slog.Debug("connectivity probe failed", "error", err)
	}
	m.Report(err == nil)
	return err == nil
}

// Report records an externally observed state, e.g. from a platform network
// callback, and publishes it if it differs from the current one.
func (m *Monitor) Report(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online.Swap(online) == online {
		return
	}
	slog.Info("connectivity changed", "online", online)
	m.changes.Broadcast(online)
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Subscribe returns a channel of state transitions.
func (m *Monitor) Subscribe() (uint64, <-chan bool) {
	return m.changes.Subscribe()
}

func (m *Monitor) Unsubscribe(id uint64) {
	m.changes.Unsubscribe(id)
}

// Stop waits for the poller to exit and closes all subscriptions. The
// context passed to Start must be cancelled first.
func (m *Monitor) Stop() {
	m.wg.Wait()
	m.changes.Close()
}
