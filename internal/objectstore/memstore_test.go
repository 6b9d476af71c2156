package objectstore

import (
	"context"
	"testing"
)

func TestMemStoreUploadDownloadDelete(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if err := s.Upload(ctx, "jobs/u1_0/stage_0/front.mp4", []byte("data"), "video/mp4"); err != nil {
		t.Fatal(err)
	}
	data, err := s.Download(ctx, "jobs/u1_0/stage_0/front.mp4")
	if err != nil || string(data) != "data" {
		t.Fatalf("got %q %v", data, err)
	}

	n, err := s.DeleteByPrefix(ctx, "jobs/u1_0/stage_0/")
	if err != nil || n != 1 {
		t.Fatalf("got %d %v", n, err)
	}
	if _, err := s.Download(ctx, "jobs/u1_0/stage_0/front.mp4"); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestMemStoreListAndPresign(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_ = s.Upload(ctx, "jobs/u1_0/stage_1/front.mp4", []byte("a"), "")
	_ = s.Upload(ctx, "jobs/u1_0/stage_1/side.mp4", []byte("b"), "")

	files, err := s.ListAndPresign(ctx, "jobs/u1_0/stage_1/")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
}
