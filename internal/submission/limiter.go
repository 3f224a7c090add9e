package submission

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/mr1hm/go-lifeline/internal/kvstore"
)

const sendHistoryKey = "send_history"

// Policy bounds how often a device may send alerts.
type Policy struct {
	MaxPerWindow int
	Window       time.Duration
	Cooldown     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxPerWindow: 5,
		Window:       60 * time.Minute,
		Cooldown:     10 * time.Second,
	}
}

// Decision is the result of a rate check.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// Evaluate applies p to the attempt history. Timestamps later than now are
// treated as now, so a clock that moved backwards never extends a wait past
// one window or one cooldown.
func (p Policy) Evaluate(history []time.Time, now time.Time) Decision {
	var recent []time.Time
	var last time.Time
	for _, t := range history {
		if t.After(now) {
			t = now
		}
		if now.Sub(t) < p.Window {
			recent = append(recent, t)
		}
		if t.After(last) {
			last = t
		}
	}

	var d Decision
	if len(recent) >= p.MaxPerWindow {
		// Wait until enough attempts age out to leave room for one more.
		slices.SortFunc(recent, time.Time.Compare)
		freeing := recent[len(recent)-p.MaxPerWindow]
		d.RetryAfter = freeing.Add(p.Window).Sub(now)
		d.Reason = fmt.Sprintf("limit of %d alerts per %s reached, try again in %s",
			p.MaxPerWindow, p.Window, roundUp(d.RetryAfter))
	}

	if !last.IsZero() && now.Sub(last) < p.Cooldown {
		wait := last.Add(p.Cooldown).Sub(now)
		if wait > d.RetryAfter {
			d.RetryAfter = wait
		}
		if d.Reason == "" {
			d.Reason = fmt.Sprintf("please wait %s before sending another alert", roundUp(wait))
		}
	}

	d.Allowed = d.Reason == ""
	return d
}

func roundUp(d time.Duration) time.Duration {
	return (d + time.Second - 1).Truncate(time.Second)
}

// SendLimiter keeps the attempt history in the device store so limits hold
// across restarts.
type SendLimiter struct {
	policy Policy
	store  kvstore.Store
}

func NewSendLimiter(policy Policy, store kvstore.Store) *SendLimiter {
	return &SendLimiter{policy: policy, store: store}
}

func (l *SendLimiter) Check(ctx context.Context, now time.Time) (Decision, error) {
	history, err := l.history(ctx)
	if err != nil {
		return Decision{}, err
	}
	return l.policy.Evaluate(history, now), nil
}

// Record adds an attempt at now and drops attempts that fell out of the window.
func (l *SendLimiter) Record(ctx context.Context, now time.Time) error {
	history, err := l.history(ctx)
	if err != nil {
		return err
	}

	kept := make([]time.Time, 0, len(history)+1)
	for _, t := range history {
		if now.Sub(t) < l.policy.Window {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)

	return l.store.Set(ctx, sendHistoryKey, kept)
}

func (l *SendLimiter) history(ctx context.Context) ([]time.Time, error) {
	var history []time.Time
	if _, err := l.store.Get(ctx, sendHistoryKey, &history); err != nil {
		return nil, fmt.Errorf("error loading send history: %w", err)
	}
	return history, nil
}
