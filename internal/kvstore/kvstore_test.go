package kvstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type record struct {
	Name  string    `json:"name"`
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

func setupTestDB(t *testing.T) *SQLite {
	db, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	return db
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	var got record
	ok, err := s.Get(ctx, "missing", &got)
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	want := record{Name: "pending", Count: 2, At: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	if err := s.Set(ctx, "k", want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	ok, err = s.Get(ctx, "k", &got)
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if got.Name != want.Name || got.Count != want.Count || !got.At.Equal(want.At) {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	// Overwrite
	if err := s.Set(ctx, "k", record{Name: "second"}); err != nil {
		t.Fatalf("Set overwrite failed: %v", err)
	}
	got = record{}
	if _, err := s.Get(ctx, "k", &got); err != nil || got.Name != "second" {
		t.Errorf("expected overwrite, got %+v (%v)", got, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if ok, _ := s.Get(ctx, "k", &got); ok {
		t.Error("expected key gone after delete")
	}
	if err := s.Delete(ctx, "never-set"); err != nil {
		t.Errorf("deleting a missing key should succeed: %v", err)
	}

	if err := s.Set(ctx, "bad", []int{1, 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "bad", &got); err == nil {
		t.Error("expected decode error for mismatched type")
	}
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}

func TestSQLite(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	testStore(t, db)
}

func TestNewSQLite_OpenFailureReleasesHandle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "missing", "state.db")
	if _, err := NewSQLite(path); err == nil {
		t.Fatal("expected error for a path in a missing directory")
	}
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	db, err := NewSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Set(ctx, "last_location", map[string]float64{"latitude": 1.5}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = NewSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var got map[string]float64
	ok, err := db.Get(ctx, "last_location", &got)
	if err != nil || !ok {
		t.Fatalf("expected value after reopen: ok=%v err=%v", ok, err)
	}
	if got["latitude"] != 1.5 {
		t.Errorf("expected latitude 1.5, got %v", got["latitude"])
	}
}
