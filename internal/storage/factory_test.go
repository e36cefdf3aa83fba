package storage

import (
	"context"
	"testing"
)

func TestNewStoreMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore("memory", "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	rec := sampleEstimatorRecord("factory-model")
	if err := store.SaveModel(ctx, rec); err != nil {
		t.Fatalf("save model: %v", err)
	}
	got, ok, err := store.GetModel(ctx, "factory-model")
	if err != nil || !ok {
		t.Fatalf("get model: ok=%t err=%v", ok, err)
	}
	if got.Kind != rec.Kind || got.Config.HiddenSize != rec.Config.HiddenSize {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestNewStoreDefaultsToMemory(t *testing.T) {
	if kind := DefaultStoreKind(); kind != "memory" {
		t.Fatalf("default store kind = %q, want memory", kind)
	}
	store, err := NewStore("", "")
	if err != nil {
		t.Fatalf("new default store: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("default store is %T, want *MemoryStore", store)
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	if _, err := NewStore("redis", ""); err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestCloseIfSupportedIgnoresMemoryStore(t *testing.T) {
	if err := CloseIfSupported(NewMemoryStore()); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
}
