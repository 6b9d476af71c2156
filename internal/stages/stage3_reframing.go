package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/igait-niu/igait-pipeline/internal/queue"
)

// ReframingWorker adjusts video framing/cropping based on detected person
// position. Ground: igait-stage3-reframing/src/main.rs is a pass-through
// placeholder ("TODO: Implement actual reframing logic") — carried here
// as the same honest pass-through rather than invented cropping logic.
type ReframingWorker struct{}

func NewReframingWorker() *ReframingWorker { return &ReframingWorker{} }

func (w *ReframingWorker) Stage() queue.StageNumber { return queue.Stage3Reframing }
func (w *ReframingWorker) ServiceName() string      { return "igait-stage3-reframing" }

func (w *ReframingWorker) Process(ctx context.Context, item queue.QueueItem) queue.ProcessingResult {
	start := time.Now()
	logs := fmt.Sprintf("reframing pass-through for job %s: front=%s side=%s\n",
		item.JobID, item.InputKeys["front_video"], item.InputKeys["side_video"])
	return queue.ProcessingResult{
		Code:       queue.Success,
		OutputKeys: map[string]string{"front_video": item.InputKeys["front_video"], "side_video": item.InputKeys["side_video"]},
		Logs:       logs,
		Duration:   time.Since(start),
	}
}
