package upload_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/igait-niu/igait-pipeline/internal/email"
	"github.com/igait-niu/igait-pipeline/internal/jobstore"
	"github.com/igait-niu/igait-pipeline/internal/objectstore"
	"github.com/igait-niu/igait-pipeline/internal/queue"
	"github.com/igait-niu/igait-pipeline/internal/rtdb"
	"github.com/igait-niu/igait-pipeline/internal/upload"
	"go.uber.org/zap"
)

func buildMultipart(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range []string{"fileuploadfront", "fileuploadside"} {
		fw, err := w.CreateFormFile(name, "video.mp4")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("fake-video-bytes"))
	}
	w.Close()
	return buf, w.FormDataContentType()
}

func TestUploadHappyPath(t *testing.T) {
	store := rtdb.NewMemStore()
	jobs := jobstore.NewStore(store)
	objects := objectstore.NewMemStore()
	q := queue.NewStore(store)
	sender := email.NewMemSender()

	h := &upload.Handler{Jobs: jobs, Objects: objects, Queue: q, Emails: sender, Log: zap.NewNop()}

	body, contentType := buildMultipart(t, map[string]string{
		"uid": "u1", "age": "30", "ethnicity": "Hispanic", "sex": "M",
		"height": "5'10\"", "weight": "150", "email": "a@b.c",
	})

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	ctx := context.Background()
	j, err := jobs.GetJob(ctx, "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !j.Status.IsProcessing() && j.Status.Code != "Submitted" {
		t.Fatalf("unexpected status: %+v", j.Status)
	}
	if _, exists, _ := store.Get(ctx, "queues/stage_1/u1_0"); !exists {
		t.Fatal("expected stage 1 queue entry")
	}
	if len(sender.All()) != 1 {
		t.Fatalf("expected welcome email sent, got %d", len(sender.All()))
	}
}

func TestUploadMissingField(t *testing.T) {
	store := rtdb.NewMemStore()
	jobs := jobstore.NewStore(store)
	objects := objectstore.NewMemStore()
	q := queue.NewStore(store)
	sender := email.NewMemSender()
	h := &upload.Handler{Jobs: jobs, Objects: objects, Queue: q, Emails: sender, Log: zap.NewNop()}

	body, contentType := buildMultipart(t, map[string]string{"age": "30"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
