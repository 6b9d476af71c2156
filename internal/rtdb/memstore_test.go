package rtdb

import (
	"context"
	"errors"
	"testing"
)

func TestMemStoreCompareAndSwapRace(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	err := s.CompareAndSwap(ctx, "k", func(current string, exists bool) (string, bool, error) {
		if exists {
			t.Fatal("expected key to not exist yet")
		}
		return "v1", true, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v1" {
		t.Fatalf("got %q %v %v", v, ok, err)
	}

	err = s.CompareAndSwap(ctx, "k", func(current string, exists bool) (string, bool, error) {
		return "", false, nil
	})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}

	v, _, _ = s.Get(ctx, "k")
	if v != "v1" {
		t.Fatalf("expected value unchanged after abort, got %q", v)
	}
}

func TestMemStoreScanPrefix(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_ = s.Set(ctx, "queues/stage_1/a", "x")
	_ = s.Set(ctx, "queues/stage_1/b", "y")
	_ = s.Set(ctx, "queues/stage_2/c", "z")

	keys, err := s.ScanPrefix(ctx, "queues/stage_1/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}
