package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/igait-niu/igait-pipeline/internal/queue"
)

// ValidityCheckWorker verifies a person is detectable in both uploaded
// videos. Ground: igait-stage2-validity-check/src/main.rs is itself a
// pass-through placeholder ("no actual validation performed") — the
// person-detection model is an out-of-scope external collaborator, so this
// worker carries the same pass-through contract honestly rather than
// inventing detection logic that was never specified.
type ValidityCheckWorker struct{}

func NewValidityCheckWorker() *ValidityCheckWorker { return &ValidityCheckWorker{} }

func (w *ValidityCheckWorker) Stage() queue.StageNumber { return queue.Stage2ValidityCheck }
func (w *ValidityCheckWorker) ServiceName() string      { return "igait-stage2-validity-check" }

func (w *ValidityCheckWorker) Process(ctx context.Context, item queue.QueueItem) queue.ProcessingResult {
	start := time.Now()
	logs := fmt.Sprintf("validity check pass-through for job %s: front=%s side=%s\n",
		item.JobID, item.InputKeys["front_video"], item.InputKeys["side_video"])
	return queue.ProcessingResult{
		Code:       queue.Success,
		OutputKeys: map[string]string{"front_video": item.InputKeys["front_video"], "side_video": item.InputKeys["side_video"]},
		Logs:       logs,
		Duration:   time.Since(start),
	}
}
