package kv

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on missing key: err = %v, want ErrNotFound", err)
	}

	if err := store.Set(ctx, "comments:doc1", []byte(`[{"id":"c1"}]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, err := store.Get(ctx, "comments:doc1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != `[{"id":"c1"}]` {
		t.Errorf("Get = %s", value)
	}

	if err := store.Delete(ctx, "comments:doc1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "comments:doc1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	original := []byte("original")
	if err := store.Set(ctx, "k", original); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	original[0] = 'X'

	value, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != "original" {
		t.Errorf("stored value mutated through caller slice: %s", value)
	}

	value[0] = 'Y'
	again, _ := store.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("stored value mutated through returned slice: %s", again)
	}
}

func TestMemoryStoreConcurrentWriters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, "shared", []byte("value"))
			_, _ = store.Get(ctx, "shared")
		}()
	}
	wg.Wait()

	value, err := store.Get(ctx, "shared")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != "value" {
		t.Errorf("Get = %s", value)
	}
}
