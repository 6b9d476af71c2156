// Package filesapi implements GET /files/{job_id}: lists every artifact
// belonging to a job and returns presigned download URLs grouped by
// stage, restricted to the job's owner or an administrator.
//
// Grounded on original_source/igait-backend/src/routes/files.rs's
// files_entrypoint.
package filesapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/igait-niu/igait-pipeline/internal/authctx"
	"github.com/igait-niu/igait-pipeline/internal/jobstore"
	"github.com/igait-niu/igait-pipeline/internal/objectstore"
	"github.com/igait-niu/igait-pipeline/internal/pathscheme"
)

// FileEntry is one presigned artifact.
type FileEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Response groups artifacts by "stage_N".
type Response struct {
	Stages map[string][]FileEntry `json:"stages"`
}

// Handler serves GET /files/{job_id}.
type Handler struct {
	Jobs    *jobstore.Store
	Objects objectstore.ObjectStore
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	callerUID, ok := authctx.UIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	jobID := mux.Vars(r)["job_id"]
	ownerUID, _, ok := pathscheme.ParseJobID(jobID)
	if !ok {
		http.Error(w, "invalid job id format", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if callerUID != ownerUID {
		caller, err := h.Jobs.GetUser(ctx, callerUID)
		if err != nil || !caller.Administrator {
			http.Error(w, "forbidden: you do not own this job", http.StatusForbidden)
			return
		}
	}

	prefix := pathscheme.JobBase(jobID)
	files, err := h.Objects.ListAndPresign(ctx, prefix)
	if err != nil {
		http.Error(w, "failed to list and presign job files", http.StatusInternalServerError)
		return
	}

	stages := make(map[string][]FileEntry)
	for _, f := range files {
		relative := strings.TrimPrefix(f.Name, prefix)
		stageDir, filename, found := strings.Cut(relative, "/")
		if !found {
			continue
		}
		stages[stageDir] = append(stages[stageDir], FileEntry{Name: filename, URL: f.URL})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{Stages: stages})
}
