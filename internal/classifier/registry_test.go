package classifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mr1hm/go-lifeline/internal/classifier/classifiertest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fixtureArtifacts() Artifacts {
	return Artifacts{
		UrgencyVocabulary:  classifiertest.UrgencyVocabularyPath,
		UrgencyModel:       classifiertest.UrgencyModelPath,
		CategoryVocabulary: classifiertest.CategoryVocabularyPath,
		CategoryModel:      classifiertest.CategoryModelPath,
	}
}

func TestRegistry_LazyAndMemoized(t *testing.T) {
	loader := classifiertest.NewLoader()
	reg := NewRegistry(loader, fixtureArtifacts(), time.Second)

	if loader.Loads(classifiertest.UrgencyModelPath) != 0 {
		t.Fatal("registry should not load before first use")
	}

	for i := 0; i < 3; i++ {
		b, release, err := reg.Urgency(context.Background())
		if err != nil {
			t.Fatalf("Urgency: %v", err)
		}
		if b.Model == nil {
			t.Fatal("expected a model")
		}
		release()
	}

	if n := loader.Loads(classifiertest.UrgencyModelPath); n != 1 {
		t.Errorf("expected 1 load, got %d", n)
	}
	if n := loader.Loads(classifiertest.CategoryModelPath); n != 0 {
		t.Errorf("category should stay unloaded, got %d loads", n)
	}
}

func TestRegistry_ConcurrentFirstUseSharesLoad(t *testing.T) {
	loader := classifiertest.NewLoader()
	loader.Delay = 30 * time.Millisecond
	reg := NewRegistry(loader, fixtureArtifacts(), time.Second)

	var wg sync.WaitGroup
	bundles := make([]*CategoryBundle, 10)
	for i := range bundles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, release, err := reg.Category(context.Background())
			if err != nil {
				t.Errorf("Category: %v", err)
				return
			}
			defer release()
			bundles[i] = b
		}(i)
	}
	wg.Wait()

	if n := loader.Loads(classifiertest.CategoryModelPath); n != 1 {
		t.Errorf("expected a single load, got %d", n)
	}
	for i, b := range bundles {
		if b != bundles[0] {
			t.Errorf("caller %d got a different bundle instance", i)
		}
	}
}

func TestRegistry_FailedLoadIsRetried(t *testing.T) {
	loader := classifiertest.NewLoader()
	loader.SetFail(errors.New("disk on fire"))
	reg := NewRegistry(loader, fixtureArtifacts(), time.Second)

	if _, _, err := reg.Urgency(context.Background()); err == nil {
		t.Fatal("expected load error")
	}

	loader.SetFail(nil)
	_, release, err := reg.Urgency(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	release()

	if n := loader.Loads(classifiertest.UrgencyModelPath); n != 2 {
		t.Errorf("expected 2 loads, got %d", n)
	}
}

func TestRegistry_RefCounting(t *testing.T) {
	reg := NewRegistry(classifiertest.NewLoader(), fixtureArtifacts(), time.Second)
	ctx := context.Background()

	_, release1, err := reg.Urgency(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, release2, err := reg.Urgency(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n := reg.InUse("urgency"); n != 2 {
		t.Errorf("expected 2 holders, got %d", n)
	}

	release1()
	release1()
	if n := reg.InUse("urgency"); n != 1 {
		t.Errorf("double release should count once, got %d holders", n)
	}
	release2()
	if n := reg.InUse("urgency"); n != 0 {
		t.Errorf("expected no holders, got %d", n)
	}
}

func TestRegistry_Reload(t *testing.T) {
	loader := classifiertest.NewLoader()
	reg := NewRegistry(loader, fixtureArtifacts(), time.Second)
	ctx := context.Background()

	_, release, err := reg.Urgency(ctx)
	if err != nil {
		t.Fatal(err)
	}
	release()

	held, releaseHeld, err := reg.Category(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if dropped := reg.Reload(); dropped != 1 {
		t.Errorf("expected only the idle bundle dropped, got %d", dropped)
	}

	fresh, releaseFresh, err := reg.Category(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer releaseFresh()
	if fresh == held {
		t.Error("stale bundle should not be handed out after reload")
	}
	if n := loader.Loads(classifiertest.CategoryModelPath); n != 2 {
		t.Errorf("expected category reloaded, got %d loads", n)
	}

	releaseHeld()
	if n := reg.InUse("category"); n != 1 {
		t.Errorf("expected only the fresh holder counted, got %d", n)
	}

	if _, r, err := reg.Urgency(ctx); err != nil {
		t.Fatal(err)
	} else {
		r()
	}
	if n := loader.Loads(classifiertest.UrgencyModelPath); n != 2 {
		t.Errorf("expected urgency reloaded, got %d loads", n)
	}
}

func TestRegistry_Prewarm(t *testing.T) {
	loader := classifiertest.NewLoader()
	reg := NewRegistry(loader, fixtureArtifacts(), time.Second)

	if err := reg.Prewarm(context.Background()); err != nil {
		t.Fatalf("Prewarm: %v", err)
	}
	if loader.Loads(classifiertest.UrgencyModelPath) != 1 || loader.Loads(classifiertest.CategoryModelPath) != 1 {
		t.Error("expected both bundles loaded")
	}
	if reg.InUse("urgency") != 0 || reg.InUse("category") != 0 {
		t.Error("prewarm should not hold references")
	}

	broken := NewRegistry(loader, Artifacts{UrgencyModel: "mem://missing"}, time.Second)
	if err := broken.Prewarm(context.Background()); err == nil {
		t.Error("expected prewarm error for missing artifacts")
	}
}

func TestRegistry_CallerCancellation(t *testing.T) {
	loader := classifiertest.NewLoader()
	loader.Delay = 100 * time.Millisecond
	reg := NewRegistry(loader, fixtureArtifacts(), time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := reg.Urgency(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// The shared load keeps going and serves the next caller.
	_, release, err := reg.Urgency(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	release()
	if n := loader.Loads(classifiertest.UrgencyModelPath); n != 1 {
		t.Errorf("expected the in-flight load to be reused, got %d loads", n)
	}
}

func TestLocationLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/model.json" {
			w.Write([]byte(`{"ok": true}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.json")
	if err := os.WriteFile(path, []byte(`{"a": 0}`), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(srv.Client())
	ctx := context.Background()

	if data, err := loader.Load(ctx, srv.URL+"/model.json"); err != nil || string(data) != `{"ok": true}` {
		t.Errorf("http load: %q, %v", data, err)
	}
	if _, err := loader.Load(ctx, srv.URL+"/missing.json"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("expected ErrArtifactNotFound over http, got %v", err)
	}
	if data, err := loader.Load(ctx, path); err != nil || string(data) != `{"a": 0}` {
		t.Errorf("file load: %q, %v", data, err)
	}
	if _, err := loader.Load(ctx, filepath.Join(dir, "nope.json")); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("expected ErrArtifactNotFound on disk, got %v", err)
	}
}
