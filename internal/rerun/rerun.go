// Package rerun implements POST /rerun: re-inserts an authenticated user's
// own job into a target stage's queue after clearing every downstream
// artifact, per spec §4.9.
//
// Grounded on original_source/igait-backend/src/routes/rerun.rs's
// rerun_entrypoint/build_input_keys.
package rerun

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/igait-niu/igait-pipeline/internal/authctx"
	"github.com/igait-niu/igait-pipeline/internal/jobstore"
	"github.com/igait-niu/igait-pipeline/internal/objectstore"
	"github.com/igait-niu/igait-pipeline/internal/pathscheme"
	"github.com/igait-niu/igait-pipeline/internal/queue"
	"github.com/igait-niu/igait-pipeline/internal/status"
)

// Request is the JSON body of POST /rerun.
type Request struct {
	JobIndex int `json:"job_index"`
	Stage    int `json:"stage"`
}

// Response is the JSON body returned by POST /rerun.
type Response struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ObjectsDeleted int    `json:"objects_deleted"`
}

// Handler serves POST /rerun.
type Handler struct {
	Jobs    *jobstore.Store
	Objects objectstore.ObjectStore
	Queue   *queue.Store
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	uid, ok := authctx.UIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Stage < 1 || req.Stage > queue.NumStages {
		http.Error(w, fmt.Sprintf("invalid stage number %d, must be between 1 and %d", req.Stage, queue.NumStages), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	job, err := h.Jobs.GetJob(ctx, uid, req.JobIndex)
	if err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	jobID := pathscheme.BuildJobID(uid, req.JobIndex)

	totalDeleted := 0
	for s := req.Stage; s <= queue.NumStages; s++ {
		deleted, err := h.Objects.DeleteByPrefix(ctx, pathscheme.StageDir(jobID, s))
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to delete stage %d objects: %v", s, err), http.StatusInternalServerError)
			return
		}
		totalDeleted += deleted
	}

	item := queue.QueueItem{
		JobID:            jobID,
		UserID:           uid,
		InputKeys:        buildInputKeys(jobID, req.Stage),
		RequiresApproval: job.RequiresApproval,
		Metadata: queue.Metadata{
			Age:       job.Age,
			Sex:       job.Sex,
			Ethnicity: job.Ethnicity,
			Height:    job.Height,
			Weight:    job.Weight,
			Email:     job.Email,
		},
	}
	if err := h.Queue.EnqueueStage(ctx, req.Stage, item); err != nil {
		http.Error(w, "failed to push job to target stage queue", http.StatusInternalServerError)
		return
	}

	if err := h.Jobs.UpdateStatus(ctx, uid, req.JobIndex, status.NewProcessing(req.Stage)); err != nil {
		http.Error(w, "failed to update job status", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success:        true,
		Message:        fmt.Sprintf("Job %s is being re-processed from stage %d (%s).", jobID, req.Stage, queue.StageNumber(req.Stage).Name()),
		ObjectsDeleted: totalDeleted,
	})
}

// buildInputKeys points the target stage at the previous stage's
// conventional front/side video outputs; for stage 1 that is stage_0, the
// original uploads.
func buildInputKeys(jobID string, stage int) map[string]string {
	prev := stage - 1
	return map[string]string{
		"front_video": pathscheme.StageFrontVideo(jobID, prev),
		"side_video":  pathscheme.StageSideVideo(jobID, prev),
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
