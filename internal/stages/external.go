// Package stages holds the six StageWorker implementations that sit
// between the queue glue (internal/stageworker) and the external content
// algorithms named out of scope in the system's purpose statement: ffmpeg
// invocation, the pose-estimation model, and the ML prediction script.
// Each worker downloads its declared inputs, invokes a configured external
// binary or passes data straight through, and uploads its declared
// outputs — the Go code here owns none of the media/ML logic itself.
//
// Grounded on igait-stages/igait-stage1-media-conversion,
// igait-stage5-cycle-detection, and igait-stage6-prediction's
// download-exec-upload shape (tokio::process::Command wrapping ffmpeg or a
// Python script), adapted to Go's os/exec and the stageworker.StageWorker
// interface stageworker.Runtime drives. Stage 7 (finalize) lives in
// internal/finalizeworker.
package stages

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/igait-niu/igait-pipeline/internal/objectstore"
	"github.com/igait-niu/igait-pipeline/internal/pathscheme"
	"github.com/igait-niu/igait-pipeline/internal/queue"
)

// ExternalCommandWorker runs a configured external program over a job's
// front/side input videos and uploads whatever the program writes to its
// output directory. BinaryPath is overridable per deployment (container
// image path, local dev path) the same way the original system read
// PREDICT_SCRIPT_PATH/GAIT_SCRIPT_PATH from the environment.
type ExternalCommandWorker struct {
	StageNum   queue.StageNumber
	Service    string
	Objects    objectstore.ObjectStore
	BinaryPath string
	// InputNames are the two logical InputKeys this worker reads — the
	// front/side pair, whatever form they take at this point in the
	// pipeline (raw video at stage 1, cycle-index JSON by stage 6).
	InputNames [2]string
	BuildArgs  func(tempDir, frontInput, sideInput string) []string
	// Outputs maps a filename BuildArgs' command writes into tempDir/output
	// to the logical input-key name the next stage will look it up by.
	Outputs map[string]string
	// PassThroughKeys are InputKeys forwarded unchanged into OutputKeys,
	// for stages whose contract carries prior artifacts alongside what the
	// external command produces (e.g. cycle detection still forwards the
	// source videos after consuming the landmark data).
	PassThroughKeys []string
}

func (w *ExternalCommandWorker) Stage() queue.StageNumber { return w.StageNum }
func (w *ExternalCommandWorker) ServiceName() string      { return w.Service }

func (w *ExternalCommandWorker) Process(ctx context.Context, item queue.QueueItem) queue.ProcessingResult {
	start := time.Now()
	var logs strings.Builder
	fmt.Fprintf(&logs, "starting %s for job %s\n", w.Service, item.JobID)

	outputKeys, err := w.run(ctx, item, &logs)
	if err != nil {
		fmt.Fprintf(&logs, "ERROR: %v\n", err)
		return queue.ProcessingResult{
			Code:     queue.Failure,
			Error:    err.Error(),
			Logs:     logs.String(),
			Duration: time.Since(start),
		}
	}
	fmt.Fprintf(&logs, "%s completed in %s\n", w.Service, time.Since(start))
	return queue.ProcessingResult{
		Code:       queue.Success,
		OutputKeys: outputKeys,
		Logs:       logs.String(),
		Duration:   time.Since(start),
	}
}

func (w *ExternalCommandWorker) run(ctx context.Context, item queue.QueueItem, logs *strings.Builder) (map[string]string, error) {
	frontKey, ok := item.InputKeys[w.InputNames[0]]
	if !ok {
		return nil, fmt.Errorf("missing %s input key", w.InputNames[0])
	}
	sideKey, ok := item.InputKeys[w.InputNames[1]]
	if !ok {
		return nil, fmt.Errorf("missing %s input key", w.InputNames[1])
	}

	tempDir, err := os.MkdirTemp("", "igait-"+item.JobID+"-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)
	outputDir := filepath.Join(tempDir, "output")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	frontInput, err := w.downloadTo(ctx, tempDir, "front_input", frontKey)
	if err != nil {
		return nil, fmt.Errorf("download front input: %w", err)
	}
	sideInput, err := w.downloadTo(ctx, tempDir, "side_input", sideKey)
	if err != nil {
		return nil, fmt.Errorf("download side input: %w", err)
	}
	fmt.Fprintf(logs, "downloaded %s and %s\n", frontKey, sideKey)

	args := w.BuildArgs(outputDir, frontInput, sideInput)
	cmd := exec.CommandContext(ctx, w.BinaryPath, args...)
	output, err := cmd.CombinedOutput()
	logs.Write(output)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.BinaryPath, err)
	}

	outputKeys := make(map[string]string, len(w.Outputs))
	for filename, logicalName := range w.Outputs {
		data, err := os.ReadFile(filepath.Join(outputDir, filename))
		if err != nil {
			return nil, fmt.Errorf("read output %s: %w", filename, err)
		}
		key := pathscheme.StageDir(item.JobID, int(w.StageNum)) + filename
		if err := w.Objects.Upload(ctx, key, data, contentTypeFor(filename)); err != nil {
			return nil, fmt.Errorf("upload output %s: %w", filename, err)
		}
		outputKeys[logicalName] = key
	}
	for _, passKey := range w.PassThroughKeys {
		if v, ok := item.InputKeys[passKey]; ok {
			outputKeys[passKey] = v
		}
	}
	return outputKeys, nil
}

func (w *ExternalCommandWorker) downloadTo(ctx context.Context, dir, basename, key string) (string, error) {
	data, err := w.Objects.Download(ctx, key)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, basename+filepath.Ext(key))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func contentTypeFor(filename string) string {
	switch filepath.Ext(filename) {
	case ".mp4":
		return "video/mp4"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
