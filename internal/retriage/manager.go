// Package retriage re-classifies alerts that were stored with a fallback
// label, typically because the device had no model loaded when it sent them.
package retriage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mr1hm/go-lifeline/internal/config"
	"github.com/mr1hm/go-lifeline/internal/models"
	"github.com/mr1hm/go-lifeline/internal/repository"
	"github.com/mr1hm/go-lifeline/internal/worker"
)

const (
	OutcomeImproved  = "improved"
	OutcomeUnchanged = "unchanged"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// sweepBatch bounds how many degraded alerts one sweep lists.
const sweepBatch = 100

type Triager interface {
	Triage(ctx context.Context, message string) models.TriageResult
}

// Store is the slice of repository.AlertRepository the manager needs.
type Store interface {
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, opts repository.Filter) ([]models.Alert, error)
	UpdateTriage(ctx context.Context, id string, t models.TriageResult) error
}

type Publisher interface {
	Broadcast(a *models.Alert) int
}

type Hooks struct {
	OnJob func(outcome string)
}

type Manager struct {
	cfg     config.WorkerConfig
	repo    Store
	triager Triager
	feed    Publisher
	hooks   Hooks
	pool    *worker.WorkerPool[string]
	batch   int
	wg      sync.WaitGroup

	mu          sync.Mutex
	queued      map[string]struct{}
	sweepOffset int
}

// NewManager builds a manager; feed may be nil.
func NewManager(cfg config.WorkerConfig, repo Store, triager Triager, feed Publisher, hooks Hooks) *Manager {
	m := &Manager{
		cfg:     cfg,
		repo:    repo,
		triager: triager,
		feed:    feed,
		hooks:   hooks,
		batch:   sweepBatch,
		queued:  make(map[string]struct{}),
	}
	m.pool = worker.NewWorkerPool[string](cfg.Count, cfg.BufferSize, m.process)
	return m
}

func (m *Manager) Start(ctx context.Context) {
	m.pool.Start(ctx)

	if m.cfg.SweepInterval > 0 {
		m.wg.Add(1)
		go m.runSweeper(ctx, m.cfg.SweepInterval)
	}
}

// Enqueue schedules a degraded alert for re-triage. It never blocks; a full
// queue drops the job and the next sweep picks the alert up again.
func (m *Manager) Enqueue(a *models.Alert) bool {
	if a == nil || a.ID == "" || !a.Triage().Degraded() {
		return false
	}

	m.mu.Lock()
	if _, ok := m.queued[a.ID]; ok {
		m.mu.Unlock()
		return false
	}
	m.queued[a.ID] = struct{}{}
	m.mu.Unlock()

	if !m.pool.TrySubmit(a.ID) {
		m.forget(a.ID)
		m.observe(OutcomeDropped)
		slog.Warn("retriage queue full", "id", a.ID)
		return false
	}
	return true
}

// Sweep enqueues one page of stored alerts that still carry a fallback label
// and returns how many were accepted. Successive sweeps walk the pages and
// wrap to the first one after a short page.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	offset := m.sweepOffset
	m.mu.Unlock()

	alerts, err := m.repo.List(ctx, repository.Filter{Degraded: true, Limit: m.batch, Offset: offset})
	if err != nil {
		return 0, fmt.Errorf("error listing degraded alerts: %w", err)
	}

	m.mu.Lock()
	if len(alerts) < m.batch {
		m.sweepOffset = 0
	} else {
		m.sweepOffset = offset + len(alerts)
	}
	m.mu.Unlock()

	n := 0
	for i := range alerts {
		if m.Enqueue(&alerts[i]) {
			n++
		}
	}
	return n, nil
}

func (m *Manager) runSweeper(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()
	slog.Info("starting retriage sweeper", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retriage sweeper shutting down")
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				slog.Error("retriage sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Debug("retriage sweep queued alerts", "count", n)
			}
		}
	}
}

func (m *Manager) process(ctx context.Context, id string) error {
	defer m.forget(id)

	a, err := m.repo.GetByID(ctx, id)
	if err != nil {
		m.observe(OutcomeFailed)
		return fmt.Errorf("error loading alert %s: %w", id, err)
	}

	prev := a.Triage()
	if !prev.Degraded() {
		m.observe(OutcomeSkipped)
		return nil
	}

	next := m.triager.Triage(ctx, a.Message)
	if !next.Improves(prev) {
		m.observe(OutcomeUnchanged)
		return nil
	}

	if err := m.repo.UpdateTriage(ctx, id, next); err != nil {
		m.observe(OutcomeFailed)
		return fmt.Errorf("error updating triage for %s: %w", id, err)
	}
	a.ApplyTriage(next)

	if m.feed != nil {
		m.feed.Broadcast(a)
	}

	m.observe(OutcomeImproved)
	slog.Info("alert retriaged", "id", id, "category", a.Category, "urgency", a.Urgency)
	return nil
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.queued, id)
	m.mu.Unlock()
}

func (m *Manager) observe(outcome string) {
	if m.hooks.OnJob != nil {
		m.hooks.OnJob(outcome)
	}
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	slog.Info("retriage manager stopped")
}
