package location

import (
	"context"
	"log/slog"
	"time"

	"github.com/mr1hm/go-lifeline/internal/kvstore"
	"github.com/mr1hm/go-lifeline/internal/models"
)

const lastKnownKey = "last_location"

type lastKnown struct {
	Coords models.Coordinates `json:"coords"`
	At     time.Time          `json:"at"`
}

// Resolver asks for a fresh fix and falls back to the last successful one.
// Only fixes that came from the locator are remembered.
type Resolver struct {
	locator Locator
	store   kvstore.Store
	timeout time.Duration
	now     func() time.Time
}

func NewResolver(locator Locator, store kvstore.Store, timeout time.Duration, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		locator: locator,
		store:   store,
		timeout: timeout,
		now:     now,
	}
}

// Resolve always returns; an unavailable location is explicit rather than a
// zero coordinate.
func (r *Resolver) Resolve(ctx context.Context) models.Location {
	fctx, cancel := context.WithTimeout(ctx, r.timeout)
	coords, err := r.fix(fctx)
	cancel()

	if err == nil {
		if err := r.store.Set(ctx, lastKnownKey, lastKnown{Coords: coords, At: r.now()}); err != nil {
			slog.Warn("failed to remember location", "error", err)
		}
		return models.Location{Coords: &coords, Source: models.LocationFix}
	}
	slog.Warn("location fix failed", "error", err)

	var last lastKnown
	ok, lerr := r.store.Get(ctx, lastKnownKey, &last)
	if lerr != nil {
		slog.Warn("failed to read last known location", "error", lerr)
	}
	if ok && lerr == nil {
		return models.Location{Coords: &last.Coords, Source: models.LocationLastKnown}
	}
	return models.UnavailableLocation()
}

// fix runs the locator but gives up at the deadline even if the locator
// ignores ctx.
func (r *Resolver) fix(ctx context.Context) (models.Coordinates, error) {
	type result struct {
		coords models.Coordinates
		err    error
	}
	done := make(chan result, 1)
	go func() {
		c, err := r.locator.Fix(ctx)
		if err == nil {
			err = Validate(c)
		}
		done <- result{c, err}
	}()

	select {
	case res := <-done:
		return res.coords, res.err
	case <-ctx.Done():
		return models.Coordinates{}, ctx.Err()
	}
}
