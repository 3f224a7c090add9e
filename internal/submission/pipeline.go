// Package submission turns an alert message into a delivered or queued alert
// record: rate check, triage, location, remote append and offline retry.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mr1hm/go-lifeline/internal/models"
	"github.com/mr1hm/go-lifeline/internal/triage"
)

type State string

const (
	StateIdle         State = "idle"
	StateRateChecking State = "rate_checking"
	StateTriaging     State = "triaging"
	StateSending      State = "sending"
	StateDelivered    State = "delivered"
	StateQueued       State = "queued"
)

type Status string

const (
	StatusDelivered Status = "delivered"
	StatusQueued    Status = "queued"
	StatusRejected  Status = "rejected"
)

// Outcome is what SubmitAlert reports back to the user.
type Outcome struct {
	Status     Status
	Triage     models.TriageResult
	Location   models.Location
	Reason     string
	RetryAfter time.Duration
	ClientID   string
	AlertID    string // assigned by the alert store on delivery
	// Resent lists client ids of previously queued alerts delivered after
	// this one went through.
	Resent []string
}

type Triager interface {
	Triage(ctx context.Context, message string) models.TriageResult
}

type LocationResolver interface {
	Resolve(ctx context.Context) models.Location
}

// AlertStore appends a record to the shared store and returns its id.
type AlertStore interface {
	Append(ctx context.Context, alert *models.Alert) (string, error)
}

type Connectivity interface {
	Online() bool
}

type Options struct {
	SendTimeout time.Duration
	// OnTransition observes every state change.
	OnTransition func(State)
}

// Pipeline handles one submission at a time per device.
type Pipeline struct {
	identity Identity
	triager  Triager
	location LocationResolver
	remote   AlertStore
	conn     Connectivity
	clock    Clock

	limiter *SendLimiter
	pending *PendingQueue
	opts    Options

	mu sync.Mutex
}

type Deps struct {
	Identity     Identity
	Triager      Triager
	Location     LocationResolver
	Remote       AlertStore
	Connectivity Connectivity // optional; nil means assume online
	Clock        Clock        // optional; defaults to SystemClock
	Limiter      *SendLimiter
	Pending      *PendingQueue
}

func NewPipeline(deps Deps, opts Options) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	return &Pipeline{
		identity: deps.Identity,
		triager:  deps.Triager,
		location: deps.Location,
		remote:   deps.Remote,
		conn:     deps.Connectivity,
		clock:    clock,
		limiter:  deps.Limiter,
		pending:  deps.Pending,
		opts:     opts,
	}
}

// SubmitAlert never fails: every path ends delivered, queued or rejected with
// a reason.
func (p *Pipeline) SubmitAlert(ctx context.Context, message string) (out Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("submission panicked", "panic", r)
			out = Outcome{Status: StatusRejected, Reason: fmt.Sprintf("internal error: %v", r)}
		}
		p.transition(StateIdle)
	}()

	now := p.clock.Now()

	p.transition(StateRateChecking)
	decision, err := p.limiter.Check(ctx, now)
	if err != nil {
		// Unreadable history must not block an emergency alert.
		slog.Error("rate check failed, allowing send", "error", err)
		decision = Decision{Allowed: true}
	}
	if !decision.Allowed {
		slog.Info("alert rejected by rate limit", "reason", decision.Reason, "retry_after", decision.RetryAfter)
		return Outcome{Status: StatusRejected, Reason: decision.Reason, RetryAfter: decision.RetryAfter}
	}
	if err := p.limiter.Record(ctx, now); err != nil {
		slog.Error("failed to record send attempt", "error", err)
	}

	message = triage.MessageOrDefault(message)

	p.transition(StateTriaging)
	var result models.TriageResult
	var loc models.Location
	var g errgroup.Group
	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("triage panicked", "panic", r)
				result = models.TriageResult{Category: models.LabelUnknown, Urgency: models.LabelUnknown}
			}
		}()
		result = p.triager.Triage(ctx, message)
		return nil
	})
	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("location lookup panicked", "panic", r)
				loc = models.UnavailableLocation()
			}
		}()
		loc = p.location.Resolve(ctx)
		return nil
	})
	_ = g.Wait()

	alert := &models.Alert{
		ClientID: uuid.NewString(),
		UserID:   p.identity.SubjectID(),
		User:     UserLabel(p.identity),
		Location: loc,
		Message:  message,
		Time:     now.UTC(),
		Status:   models.AlertStatusOpen,
	}
	alert.ApplyTriage(result)

	out = Outcome{Triage: result, Location: loc, ClientID: alert.ClientID}

	p.transition(StateSending)
	if p.conn != nil && !p.conn.Online() {
		return p.queue(ctx, out, alert, now, "offline")
	}

	id, err := p.send(ctx, alert)
	if err != nil {
		slog.Warn("alert send failed, queueing", "client_id", alert.ClientID, "error", err)
		return p.queue(ctx, out, alert, now, err.Error())
	}

	p.transition(StateDelivered)
	slog.Info("alert delivered", "id", id, "client_id", alert.ClientID,
		"category", result.Category, "urgency", result.Urgency)
	out.Status = StatusDelivered
	out.AlertID = id

	// The store is reachable, so send whatever an earlier attempt left queued.
	if report := p.flushPending(ctx); len(report.Delivered) > 0 || report.Err != nil {
		out.Resent = report.Delivered
		slog.Info("queued alerts resent after delivery",
			"delivered", len(report.Delivered), "remaining", report.Remaining)
	}
	return out
}

func (p *Pipeline) queue(ctx context.Context, out Outcome, alert *models.Alert, now time.Time, reason string) Outcome {
	p.transition(StateQueued)
	out.Status = StatusQueued
	out.Reason = reason

	_, err := p.pending.Enqueue(ctx, models.PendingAlert{Alert: *alert, QueuedAt: now.UTC(), Reason: reason})
	if err != nil {
		slog.Error("failed to persist pending alert", "client_id", alert.ClientID, "error", err)
		out.Reason = fmt.Sprintf("%s; alert could not be saved for retry: %v", reason, err)
	}
	return out
}

func (p *Pipeline) send(ctx context.Context, alert *models.Alert) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, p.opts.SendTimeout)
	defer cancel()
	return p.remote.Append(sctx, alert)
}

// RetryReport summarizes one pass over the pending queue.
type RetryReport struct {
	Delivered []string // client ids
	Remaining int
	Err       error
}

// RetryPending makes one attempt per queued alert, oldest first. A failed
// entry stays exactly as it was and does not hold back the ones after it.
func (p *Pipeline) RetryPending(ctx context.Context) RetryReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushPending(ctx)
}

func (p *Pipeline) flushPending(ctx context.Context) RetryReport {
	items, err := p.pending.List(ctx)
	if err != nil {
		return RetryReport{Err: err}
	}

	var report RetryReport
	var errs []error
	for _, item := range items {
		alert := item.Alert
		id, err := p.send(ctx, &alert)
		if err != nil {
			slog.Warn("pending alert retry failed", "client_id", alert.ClientID, "error", err)
			errs = append(errs, fmt.Errorf("alert %s: %w", alert.ClientID, err))
			report.Remaining++
			continue
		}
		if err := p.pending.Remove(ctx, alert.ClientID); err != nil {
			slog.Error("failed to clear delivered pending alert", "client_id", alert.ClientID, "error", err)
		}
		slog.Info("pending alert delivered", "id", id, "client_id", alert.ClientID)
		report.Delivered = append(report.Delivered, alert.ClientID)
	}
	report.Err = errors.Join(errs...)
	return report
}

func (p *Pipeline) Pending(ctx context.Context) ([]models.PendingAlert, error) {
	return p.pending.List(ctx)
}

// Run retries the pending queue once on every offline to online transition
// read from changes, until ctx ends or changes closes.
func (p *Pipeline) Run(ctx context.Context, changes <-chan bool) {
	online := false
	for {
		select {
		case <-ctx.Done():
			return
		case now, ok := <-changes:
			if !ok {
				return
			}
			if now && !online {
				report := p.RetryPending(ctx)
				slog.Info("reconnect retry finished",
					"delivered", len(report.Delivered), "remaining", report.Remaining)
			}
			online = now
		}
	}
}

func (p *Pipeline) transition(s State) {
	slog.Debug("submission state", "state", s)
	if p.opts.OnTransition != nil {
		p.opts.OnTransition(s)
	}
}
