package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/igait-niu/igait-pipeline/internal/rtdb"
)

// TestConcurrentClaimRace exercises the "exactly one winner" property
// (testable property #2 / end-to-end scenario #5) against a real Redis
// WATCH/MULTI/EXEC backend, not the in-process MemStore, so the race is
// resolved by Redis's optimistic locking rather than a Go mutex.
func TestConcurrentClaimRace(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rtdb.NewRedisStore(rdb))

	ctx := context.Background()
	if err := store.EnqueueStage(ctx, 1, QueueItem{JobID: "u1_0"}); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	results := make([]ClaimCode, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = store.Claim(ctx, 1, string(rune('a'+i))).Code
		}(i)
	}
	wg.Wait()

	claims := 0
	for _, c := range results {
		if c == Claimed {
			claims++
		} else if c != AllClaimed {
			t.Fatalf("unexpected claim code: %v", c)
		}
	}
	if claims != 1 {
		t.Fatalf("expected exactly one winner, got %d", claims)
	}
}
