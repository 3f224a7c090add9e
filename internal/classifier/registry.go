package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mr1hm/go-lifeline/internal/textproc"
)

const (
	bundleUrgency  = "urgency"
	bundleCategory = "category"
)

// Artifacts names where each model artifact lives.
type Artifacts struct {
	UrgencyVocabulary  string
	UrgencyModel       string
	CategoryVocabulary string
	CategoryModel      string
}

type entry struct {
	value any
	refs  int
	stale bool
}

// Registry lazily loads model bundles on first use and shares them between
// callers. Concurrent first uses wait on a single load; failed loads are not
// cached, so the next caller retries.
type Registry struct {
	loader    Loader
	artifacts Artifacts
	timeout   time.Duration

	group   singleflight.Group
	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry(loader Loader, artifacts Artifacts, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Registry{
		loader:    loader,
		artifacts: artifacts,
		timeout:   timeout,
		entries:   make(map[string]*entry),
	}
}

func (r *Registry) Urgency(ctx context.Context) (*UrgencyBundle, func(), error) {
	v, release, err := r.acquire(ctx, bundleUrgency, r.loadUrgency)
	if err != nil {
		return nil, nil, err
	}
	return v.(*UrgencyBundle), release, nil
}

func (r *Registry) Category(ctx context.Context) (*CategoryBundle, func(), error) {
	v, release, err := r.acquire(ctx, bundleCategory, r.loadCategory)
	if err != nil {
		return nil, nil, err
	}
	return v.(*CategoryBundle), release, nil
}

// Prewarm loads every bundle now instead of on first classification.
func (r *Registry) Prewarm(ctx context.Context) error {
	var errs []error
	if _, release, err := r.Urgency(ctx); err != nil {
		errs = append(errs, err)
	} else {
		release()
	}
	if _, release, err := r.Category(ctx); err != nil {
		errs = append(errs, err)
	} else {
		release()
	}
	return errors.Join(errs...)
}

// Reload marks every cached bundle stale. Idle bundles are dropped at once,
// bundles still held are dropped on their last release; either way the next
// acquire reads the artifacts again.
func (r *Registry) Reload() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for key, e := range r.entries {
		e.stale = true
		if e.refs == 0 {
			delete(r.entries, key)
			dropped++
		}
	}
	return dropped
}

// InUse reports how many holders currently reference the named bundle.
func (r *Registry) InUse(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		return e.refs
	}
	return 0
}

func (r *Registry) acquire(ctx context.Context, key string, load func(context.Context) (any, error)) (any, func(), error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok && !e.stale {
		e.refs++
		r.mu.Unlock()
		return e.value, r.releaser(key, e), nil
	}
	r.mu.Unlock()

	ch := r.group.DoChan(key, func() (any, error) {
		r.mu.Lock()
		if e, ok := r.entries[key]; ok && !e.stale {
			r.mu.Unlock()
			return e, nil
		}
		r.mu.Unlock()

		// Detached from the first caller so its cancellation does not fail
		// everyone else waiting on the same load.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		start := time.Now()
		v, err := load(loadCtx)
		if err != nil {
			slog.Error("model load failed", "model", key, "error", err)
			return nil, err
		}
		slog.Info("model loaded", "model", key, "duration", time.Since(start))

		e := &entry{value: v}
		r.mu.Lock()
		r.entries[key] = e
		r.mu.Unlock()
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, nil, res.Err
		}
		e := res.Val.(*entry)
		r.mu.Lock()
		e.refs++
		r.mu.Unlock()
		return e.value, r.releaser(key, e), nil
	}
}

func (r *Registry) releaser(key string, e *entry) func() {
	return sync.OnceFunc(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		e.refs--
		if e.refs == 0 && e.stale && r.entries[key] == e {
			delete(r.entries, key)
		}
	})
}

func (r *Registry) loadBoth(ctx context.Context, vocabLoc, modelLoc string) (vocab *textproc.Vocabulary, model []byte, err error) {
	var vocabData []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vocabData, err = r.loader.Load(gctx, vocabLoc)
		return err
	})
	g.Go(func() error {
		var err error
		model, err = r.loader.Load(gctx, modelLoc)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	vocab, err = textproc.ParseVocabulary(vocabData)
	if err != nil {
		return nil, nil, fmt.Errorf("vocabulary %s: %w", vocabLoc, err)
	}
	return vocab, model, nil
}

func (r *Registry) loadUrgency(ctx context.Context) (any, error) {
	vocab, data, err := r.loadBoth(ctx, r.artifacts.UrgencyVocabulary, r.artifacts.UrgencyModel)
	if err != nil {
		return nil, err
	}
	model, err := ParseUrgencyModel(data)
	if err != nil {
		return nil, err
	}
	return NewUrgencyBundle(vocab, model)
}

func (r *Registry) loadCategory(ctx context.Context) (any, error) {
	vocab, data, err := r.loadBoth(ctx, r.artifacts.CategoryVocabulary, r.artifacts.CategoryModel)
	if err != nil {
		return nil, err
	}
	net, err := ParseNetwork(data)
	if err != nil {
		return nil, err
	}
	return NewCategoryBundle(vocab, net), nil
}
