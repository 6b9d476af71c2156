package jobstore

import (
	"context"
	"testing"

	"github.com/igait-niu/igait-pipeline/internal/rtdb"
	"github.com/igait-niu/igait-pipeline/internal/status"
)

func TestEnsureUserIdempotentPreservesAdministrator(t *testing.T) {
	s := NewStore(rtdb.NewMemStore())
	ctx := context.Background()

	if err := s.EnsureUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	u, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	u.Administrator = true
	if err := s.putUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	if err := s.EnsureUser(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	u2, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !u2.Administrator {
		t.Fatal("expected administrator flag to survive idempotent ensure_user")
	}
}

func TestCountJobsZeroForFreshUser(t *testing.T) {
	s := NewStore(rtdb.NewMemStore())
	ctx := context.Background()

	n, err := s.CountJobs(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 { // EnsureUser seeds an empty job list
		t.Fatalf("expected 0 jobs, got %d", n)
	}
}

func TestNewJobAppendsAndReturnsIndex(t *testing.T) {
	s := NewStore(rtdb.NewMemStore())
	ctx := context.Background()

	idx, err := s.NewJob(ctx, "u3", Job{Email: "a@b.c"})
	if err != nil {
		t.Fatal(err)
	}
	if idx != 0 { // a fresh user's first job lands at index 0
		t.Fatalf("expected index 0, got %d", idx)
	}

	job, err := s.GetJob(ctx, "u3", idx)
	if err != nil {
		t.Fatal(err)
	}
	if job.Email != "a@b.c" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestUpdateStatusOverwrites(t *testing.T) {
	s := NewStore(rtdb.NewMemStore())
	ctx := context.Background()
	idx, err := s.NewJob(ctx, "u4", Job{Email: "a@b.c"})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateStatus(ctx, "u4", idx, status.NewProcessing(3)); err != nil {
		t.Fatal(err)
	}
	job, err := s.GetJob(ctx, "u4", idx)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status.Code != status.Processing || job.Status.Stage != 3 {
		t.Fatalf("unexpected status: %+v", job.Status)
	}
}

func TestUpdateStatusOutOfRange(t *testing.T) {
	s := NewStore(rtdb.NewMemStore())
	ctx := context.Background()
	_ = s.EnsureUser(ctx, "u5")

	if err := s.UpdateStatus(ctx, "u5", 99, status.NewSubmitted()); err == nil {
		t.Fatal("expected out-of-range error")
	}
}
