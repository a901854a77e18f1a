package bboltkv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/louisbranch/arcana.cards/internal/kv"
)

func TestStorePutGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arcana.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	payload := []byte(`["the_fool","the_star"]`)
	if err := store.Put(context.Background(), "hand:user-1", payload); err != nil {
		t.Fatalf("put record: %v", err)
	}

	loaded, err := store.Get(context.Background(), "hand:user-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if string(loaded) != string(payload) {
		t.Fatalf("expected payload %s, got %s", payload, loaded)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arcana.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	_, err = store.Get(context.Background(), "hand:missing")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected kv.ErrNotFound, got %v", err)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arcana.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Put(context.Background(), "flag:launch", []byte("true")); err != nil {
		t.Fatalf("put record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Get(context.Background(), "flag:launch")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(loaded) != "true" {
		t.Fatalf("expected true, got %s", loaded)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for blank path")
	}
}
