package queue

import (
	"context"
	"testing"
	"time"

	"github.com/igait-niu/igait-pipeline/internal/rtdb"
)

func newStore() *Store {
	return NewStore(rtdb.NewMemStore())
}

func TestClaimEmptyQueue(t *testing.T) {
	s := newStore()
	res := s.Claim(context.Background(), 1, "w1")
	if res.Code != QueueEmpty {
		t.Fatalf("expected QueueEmpty, got %v", res.Code)
	}
}

func TestClaimSingleItemThenAllClaimed(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	item := QueueItem{JobID: "u1_0", UserID: "u1"}
	if err := s.EnqueueStage(ctx, 1, item); err != nil {
		t.Fatal(err)
	}

	res := s.Claim(ctx, 1, "w1")
	if res.Code != Claimed || res.Item.JobID != "u1_0" {
		t.Fatalf("expected Claimed u1_0, got %+v", res)
	}

	res2 := s.Claim(ctx, 1, "w2")
	if res2.Code != AllClaimed {
		t.Fatalf("expected AllClaimed for a second concurrent claimer, got %v", res2.Code)
	}
}

func TestHeartbeatRenewsAndDetectsLostClaim(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	_ = s.EnqueueStage(ctx, 1, QueueItem{JobID: "u1_0"})
	res := s.Claim(ctx, 1, "w1")
	if res.Code != Claimed {
		t.Fatal("setup: expected claim")
	}

	if err := s.Heartbeat(ctx, 1, "u1_0", "w1"); err != nil {
		t.Fatalf("expected successful heartbeat: %v", err)
	}
	if err := s.Heartbeat(ctx, 1, "u1_0", "someone-else"); err != ErrClaimLost {
		t.Fatalf("expected ErrClaimLost, got %v", err)
	}
}

func TestStaleClaimIsReclaimed(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	staleHeartbeat := time.Now().Add(-ClaimTimeout - time.Minute).UnixMilli()
	item := QueueItem{
		JobID: "u1_0",
		Claim: &Claim{WorkerID: "dead-worker", ClaimedAtMs: staleHeartbeat, HeartbeatAtMs: staleHeartbeat},
	}
	if err := s.EnqueueStage(ctx, 5, item); err != nil {
		t.Fatal(err)
	}

	res := s.Claim(ctx, 5, "worker-b")
	if res.Code != Claimed || res.Item.Claim.WorkerID != "worker-b" {
		t.Fatalf("expected worker-b to reclaim stale item, got %+v", res)
	}
}

func TestCompleteRemovesEntryRegardlessOfClaimant(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	_ = s.EnqueueStage(ctx, 1, QueueItem{JobID: "u1_0"})
	_ = s.Claim(ctx, 1, "w1")

	if err := s.Complete(ctx, 1, "u1_0"); err != nil {
		t.Fatal(err)
	}
	res := s.Claim(ctx, 1, "w2")
	if res.Code != QueueEmpty {
		t.Fatalf("expected QueueEmpty after complete, got %v", res.Code)
	}
}

func TestRerunOverwriteLeavesSingleEntry(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	_ = s.EnqueueStage(ctx, 4, QueueItem{JobID: "u2_3", Attempts: 2, Claim: &Claim{WorkerID: "stale"}})

	// Rerun overwrites unconditionally with a fresh item.
	if err := s.EnqueueStage(ctx, 4, QueueItem{JobID: "u2_3"}); err != nil {
		t.Fatal(err)
	}

	res := s.Claim(ctx, 4, "w1")
	if res.Code != Claimed || res.Item.Attempts != 0 || res.Item.Claim.WorkerID != "w1" {
		t.Fatalf("expected a fresh claimable item, got %+v", res)
	}

	res2 := s.Claim(ctx, 4, "w2")
	if res2.Code != AllClaimed {
		t.Fatalf("expected exactly one queue entry for u2_3, got %v", res2.Code)
	}
}

func TestClaimFinalize(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	fin := FinalizeQueueItem{QueueItem: QueueItem{JobID: "u3_0"}, Success: false, Error: "boom"}
	if err := s.EnqueueFinalize(ctx, fin); err != nil {
		t.Fatal(err)
	}

	res := s.ClaimFinalize(ctx, "finalize-1")
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Code != Claimed || res.Item.JobID != "u3_0" || res.Item.Error != "boom" {
		t.Fatalf("unexpected claim: %+v", res)
	}

	if err := s.CompleteFinalize(ctx, "u3_0"); err != nil {
		t.Fatal(err)
	}
	res2 := s.ClaimFinalize(ctx, "finalize-2")
	if res2.Err != nil {
		t.Fatal(res2.Err)
	}
	if res2.Code != QueueEmpty {
		t.Fatalf("expected QueueEmpty after CompleteFinalize, got %v", res2.Code)
	}
}

func TestStageNumberHelpers(t *testing.T) {
	if !Stage4PoseEstimation.Valid() {
		t.Fatal("expected stage 4 valid")
	}
	if Stage4PoseEstimation.StoragePrefix() != "stage_4" {
		t.Fatalf("got %q", Stage4PoseEstimation.StoragePrefix())
	}
	if StageNumber(0).Valid() || StageNumber(8).Valid() {
		t.Fatal("expected stage 0 and 8 invalid")
	}
}
