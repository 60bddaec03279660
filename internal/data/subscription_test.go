package data

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSubscriptionCache_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	ctx := context.Background()

	cache, err := NewSubscriptionCache(dbPath)
	if err != nil {
		t.Fatalf("NewSubscriptionCache: %v", err)
	}
	if cache.Contains("a") {
		t.Error("Expected empty cache")
	}
	if err := cache.Add(ctx, "a"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := cache.Add(ctx, "b"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	cache.Close()

	reopened, err := NewSubscriptionCache(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if !reopened.Contains("a") || !reopened.Contains("b") {
		t.Errorf("Expected entries after reopen, got %v", reopened.List())
	}
}

func TestSubscriptionCache_Reconcile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	ctx := context.Background()

	cache, err := NewSubscriptionCache(dbPath)
	if err != nil {
		t.Fatalf("NewSubscriptionCache: %v", err)
	}
	defer cache.Close()

	for _, ch := range []string{"a", "b", "c"} {
		_ = cache.Add(ctx, ch)
	}

	removed, err := cache.Reconcile(ctx, []string{"a", "c", "new"})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if got := cache.List(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("Expected [a c], got %v", got)
	}
	if cache.Contains("new") {
		t.Error("Expected reconcile not to add channels")
	}

	reopened, _ := NewSubscriptionCache(dbPath)
	defer reopened.Close()
	if reopened.Contains("b") {
		t.Error("Expected eviction to be persisted")
	}
}

func TestSubscriptionCache_Clear(t *testing.T) {
	cache, err := NewSubscriptionCache(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("NewSubscriptionCache: %v", err)
	}
	defer cache.Close()

	_ = cache.Add(context.Background(), "a")
	if err := cache.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(cache.List()) != 0 {
		t.Error("Expected empty cache after clear")
	}
}
