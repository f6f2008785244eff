package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestSQLite(t *testing.T) *SQLStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nutri.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	s := NewSQLStore(db, DialectSQLite)
	if err := MigrateSQLite(s); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want absent", ok, err)
	}

	if err := s.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("Get(k) = %q, %v, %v; want v2", v, ok, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("expected key to be gone after Delete")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete of absent key should be a no-op, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, newTestSQLite(t))
}

func TestMigrateSQLite_Idempotent(t *testing.T) {
	s := newTestSQLite(t)
	if err := MigrateSQLite(s); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}

func TestGetJSON_Corrupt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "list", "[{not json")

	out := []string{"stale"}
	found, err := GetJSON(ctx, s, "list", &out)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if found {
		t.Error("corrupt value must not be reported as found")
	}
	if out != nil {
		t.Errorf("expected zero value after corrupt read, got %v", out)
	}
}

func TestGetJSON_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	in := map[string][]string{"a": {"1-0-Rice"}}
	if err := SetJSON(ctx, s, "p", in); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var out map[string][]string
	found, err := GetJSON(ctx, s, "p", &out)
	if err != nil || !found {
		t.Fatalf("GetJSON: found %v, err %v", found, err)
	}
	if len(out["a"]) != 1 || out["a"][0] != "1-0-Rice" {
		t.Errorf("unexpected value %v", out)
	}
}

type failingStore struct{ MemoryStore }

func (*failingStore) Set(context.Context, string, string) error { return errors.New("quota exceeded") }

func TestSetJSON_WriteFailure(t *testing.T) {
	err := SetJSON(context.Background(), &failingStore{}, "k", []int{1})
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
}

func TestOpen_Memory(t *testing.T) {
	s, closer, err := Open(context.Background(), Options{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closer.Close()
	exerciseStore(t, s)
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, _, err := Open(context.Background(), Options{Driver: "etcd"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
