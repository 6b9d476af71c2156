package rtdb

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(rdb), mr
}

func TestRedisStoreSetGetDelete(t *testing.T) {
	s, mr := newTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("got %q %v %v", v, ok, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	_, ok, _ = s.Get(ctx, "k")
	if ok {
		t.Fatal("expected key to be gone")
	}
}

func TestRedisStoreCompareAndSwapAbort(t *testing.T) {
	s, mr := newTestStore(t)
	defer mr.Close()
	ctx := context.Background()

	err := s.CompareAndSwap(ctx, "claim", func(current string, exists bool) (string, bool, error) {
		if exists {
			t.Fatal("expected absent")
		}
		return "claimed-by-a", true, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// A second claimer observes the existing value and declines to write.
	err = s.CompareAndSwap(ctx, "claim", func(current string, exists bool) (string, bool, error) {
		if current != "claimed-by-a" {
			t.Fatalf("unexpected current: %q", current)
		}
		return "", false, nil
	})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestRedisStoreScanPrefix(t *testing.T) {
	s, mr := newTestStore(t)
	defer mr.Close()
	ctx := context.Background()
	_ = s.Set(ctx, "queues/stage_1/job-a", "{}")
	_ = s.Set(ctx, "queues/stage_1/job-b", "{}")
	_ = s.Set(ctx, "queues/finalize/job-c", "{}")

	keys, err := s.ScanPrefix(ctx, "queues/stage_1/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d: %v", len(keys), keys)
	}
}
