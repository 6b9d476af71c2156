// Package upload implements POST /upload: validates the multipart
// submission, creates a job record, uploads both videos, enqueues stage 1,
// and sends the welcome email.
//
// Grounded on original_source/igait-backend/src/routes/upload.rs's
// unpack_upload_arguments/upload_entrypoint/upload_and_dispatch, adapted
// from HTTP-webhook dispatch to stage-1 queue enqueue per spec §4.8's
// queue-worker-is-authoritative resolution.
package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/igait-niu/igait-pipeline/internal/email"
	"github.com/igait-niu/igait-pipeline/internal/jobstore"
	"github.com/igait-niu/igait-pipeline/internal/objectstore"
	"github.com/igait-niu/igait-pipeline/internal/pathscheme"
	"github.com/igait-niu/igait-pipeline/internal/queue"
	"github.com/igait-niu/igait-pipeline/internal/status"
	"go.uber.org/zap"
)

// MaxBodyBytes caps the multipart request body, matching §5's ~500MB
// upload ceiling.
const MaxBodyBytes = 500 << 20

// Handler serves POST /upload.
type Handler struct {
	Jobs    *jobstore.Store
	Objects objectstore.ObjectStore
	Queue   *queue.Store
	Emails  email.Sender
	Log     *zap.Logger
}

type arguments struct {
	uid                             string
	age, weight                     int
	ethnicity, sex, height, emailTo string
	frontName, sideName             string
	frontBytes, sideBytes           []byte
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	ctx := r.Context()

	args, err := unpackArguments(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	index, err := h.Jobs.CountJobs(ctx, args.uid)
	if err != nil {
		http.Error(w, "failed to allocate job index", http.StatusInternalServerError)
		return
	}
	jobID := pathscheme.BuildJobID(args.uid, index)

	job := jobstore.Job{
		Age:       args.age,
		Ethnicity: args.ethnicity,
		Sex:       args.sex,
		Height:    args.height,
		Weight:    args.weight,
		Email:     args.emailTo,
		Timestamp: time.Now().UTC(),
		Status:    status.NewSubmitted(),
	}
	if _, err := h.Jobs.NewJob(ctx, args.uid, job); err != nil {
		http.Error(w, "failed to save job record", http.StatusInternalServerError)
		return
	}

	if err := h.uploadAndEnqueue(ctx, jobID, args); err != nil {
		h.Log.Error("upload and enqueue failed", zap.Error(err), zap.String("job_id", jobID))
		_ = h.Jobs.UpdateStatus(ctx, args.uid, index, status.NewError(err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	subject, body := email.Welcome(time.Now().UTC().Format(time.RFC1123), strconv.Itoa(args.age), args.ethnicity, args.sex, args.height, args.weight, args.uid, jobID)
	if err := h.Emails.Send(args.emailTo, subject, body); err != nil {
		h.Log.Warn("welcome email failed", zap.Error(err), zap.String("job_id", jobID))
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) uploadAndEnqueue(ctx context.Context, jobID string, args arguments) error {
	frontExt := extension(args.frontName)
	sideExt := extension(args.sideName)
	if frontExt == "" || sideExt == "" {
		return fmt.Errorf("both video files must have an extension")
	}

	frontKey := pathscheme.UploadFrontVideo(jobID, frontExt)
	sideKey := pathscheme.UploadSideVideo(jobID, sideExt)

	if err := h.Objects.Upload(ctx, frontKey, args.frontBytes, "video/mp4"); err != nil {
		return fmt.Errorf("upload front video: %w", err)
	}
	if err := h.Objects.Upload(ctx, sideKey, args.sideBytes, "video/mp4"); err != nil {
		return fmt.Errorf("upload side video: %w", err)
	}

	item := queue.QueueItem{
		JobID:  jobID,
		UserID: args.uid,
		InputKeys: map[string]string{
			"front_video": frontKey,
			"side_video":  sideKey,
		},
		Metadata: queue.Metadata{
			Age:       args.age,
			Sex:       args.sex,
			Ethnicity: args.ethnicity,
			Height:    args.height,
			Weight:    args.weight,
			Email:     args.emailTo,
		},
	}
	if err := h.Queue.EnqueueStage(ctx, int(queue.Stage1MediaConversion), item); err != nil {
		return fmt.Errorf("enqueue stage 1: %w", err)
	}
	return nil
}

func unpackArguments(r *http.Request) (arguments, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return arguments{}, fmt.Errorf("bad upload request: %w", err)
	}

	get := func(key string) (string, bool) {
		v := r.FormValue(key)
		return v, v != ""
	}

	uid, ok := get("uid")
	if !ok {
		return arguments{}, fmt.Errorf("missing 'uid' in request")
	}
	ageStr, ok := get("age")
	if !ok {
		return arguments{}, fmt.Errorf("missing 'age' in request")
	}
	age, err := strconv.Atoi(ageStr)
	if err != nil {
		return arguments{}, fmt.Errorf("'age' was not parseable as a number")
	}
	ethnicity, ok := get("ethnicity")
	if !ok {
		return arguments{}, fmt.Errorf("missing 'ethnicity' in request")
	}
	sex, ok := get("sex")
	if !ok || sex == "" {
		return arguments{}, fmt.Errorf("missing 'sex' in request")
	}
	height, ok := get("height")
	if !ok {
		return arguments{}, fmt.Errorf("missing 'height' in request")
	}
	weightStr, ok := get("weight")
	if !ok {
		return arguments{}, fmt.Errorf("missing 'weight' in request")
	}
	weight, err := strconv.Atoi(weightStr)
	if err != nil {
		return arguments{}, fmt.Errorf("'weight' was not parseable as a number")
	}
	emailTo, ok := get("email")
	if !ok {
		return arguments{}, fmt.Errorf("missing 'email' in request")
	}

	frontName, frontBytes, err := readFile(r, "fileuploadfront")
	if err != nil {
		return arguments{}, err
	}
	sideName, sideBytes, err := readFile(r, "fileuploadside")
	if err != nil {
		return arguments{}, err
	}

	return arguments{
		uid:        uid,
		age:        age,
		ethnicity:  ethnicity,
		sex:        sex[:1],
		height:     height,
		weight:     weight,
		emailTo:    emailTo,
		frontName:  frontName,
		sideName:   sideName,
		frontBytes: frontBytes,
		sideBytes:  sideBytes,
	}, nil
}

func readFile(r *http.Request, field string) (name string, data []byte, err error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, fmt.Errorf("missing '%s' in request: %w", field, err)
	}
	defer file.Close()
	data, err = io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("could not read bytes from field '%s': %w", field, err)
	}
	return header.Filename, data, nil
}

func extension(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 || i == len(filename)-1 {
		return ""
	}
	return filename[i+1:]
}
