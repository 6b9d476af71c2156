// Package pathscheme builds the deterministic object-store keys that
// connect one stage's outputs to the next stage's inputs, and the job-ID
// codec used throughout the pipeline.
//
// All functions here are pure and stateless — the same inputs always
// produce the same key, per the path-determinism property the rest of the
// system relies on for idempotent reruns.
package pathscheme

import (
	"fmt"
	"strconv"
	"strings"
)

const NumStages = 7

// JobBase returns the root prefix for everything belonging to a job.
func JobBase(jobID string) string {
	return fmt.Sprintf("jobs/%s/", jobID)
}

// StageDir returns the prefix for a stage's output directory, stage in 0..7.
func StageDir(jobID string, stage int) string {
	return fmt.Sprintf("jobs/%s/stage_%d/", jobID, stage)
}

// UploadsDir is the stage-0 directory holding the original uploads.
func UploadsDir(jobID string) string {
	return StageDir(jobID, 0)
}

// UploadFrontVideo is the key for the original front-view upload.
func UploadFrontVideo(jobID, extension string) string {
	return fmt.Sprintf("jobs/%s/stage_0/front.%s", jobID, extension)
}

// UploadSideVideo is the key for the original side-view upload.
func UploadSideVideo(jobID, extension string) string {
	return fmt.Sprintf("jobs/%s/stage_0/side.%s", jobID, extension)
}

// StageFrontVideo is the conventional front-video key a stage writes or
// reads within its own stage directory.
func StageFrontVideo(jobID string, stage int) string {
	return fmt.Sprintf("jobs/%s/stage_%d/front.mp4", jobID, stage)
}

// StageSideVideo is the conventional side-video key within a stage directory.
func StageSideVideo(jobID string, stage int) string {
	return fmt.Sprintf("jobs/%s/stage_%d/side.mp4", jobID, stage)
}

// PredictionArtifact is the fixed key the prediction stage writes and the
// finalize worker reads.
func PredictionArtifact(jobID string) string {
	return fmt.Sprintf("jobs/%s/stage_6/prediction.json", jobID)
}

// ResultsArchive is the final archive produced by the finalize stage.
func ResultsArchive(jobID string) string {
	return fmt.Sprintf("jobs/%s/stage_7/results.zip", jobID)
}

// ExtractJobID recovers the job_id from any key under jobs/{job_id}/...
func ExtractJobID(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "jobs/")
	if !ok {
		return "", false
	}
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return "", false
	}
	return rest[:idx], true
}

// BuildJobID constructs the job_id for a user's index-th submission.
func BuildJobID(uid string, index int) string {
	return fmt.Sprintf("%s_%d", uid, index)
}

// ParseJobID splits a job_id on its LAST underscore into (uid, index).
// This is the spec-mandated resolution of a source ambiguity: the original
// system split on the last underscore in some call paths and the first in
// others; this package always uses the last, matching the rerun handler.
func ParseJobID(jobID string) (uid string, index int, ok bool) {
	i := strings.LastIndex(jobID, "_")
	if i < 0 || i == len(jobID)-1 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(jobID[i+1:])
	if err != nil {
		return "", 0, false
	}
	return jobID[:i], idx, true
}
