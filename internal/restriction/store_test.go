package restriction

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	_, err = db.Exec(`
		CREATE TABLE kv_state (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;`)
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := NewSQLiteStore(setupTestDB(t))

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() = %v, want ErrKeyNotFound", err)
	}
}

func TestSQLiteStore_ApplyUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(setupTestDB(t))

	var b Batch
	b.Put("a", "1")
	b.Put("b", "2")
	if err := store.Apply(ctx, b); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	var b2 Batch
	b2.Put("a", "10")
	b2.Delete("b")
	if err := store.Apply(ctx, b2); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if v, err := store.Get(ctx, "a"); err != nil || v != "10" {
		t.Errorf("Get(a) = %q, %v; want 10", v, err)
	}
	if _, err := store.Get(ctx, "b"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(b) = %v, want ErrKeyNotFound", err)
	}
}

func TestSQLiteStore_RoundTripState(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(setupTestDB(t))

	if err := Save(ctx, store, sampleState()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(ctx, store)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.Equal(sampleState()) {
		t.Errorf("Load() = %+v", got)
	}
}

func TestSQLiteStore_EmptyBatch(t *testing.T) {
	store := NewSQLiteStore(setupTestDB(t))
	if err := store.Apply(context.Background(), Batch{}); err != nil {
		t.Errorf("Apply(empty) = %v", err)
	}
}
