package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/igait-niu/igait-pipeline/internal/queue"
)

// PoseEstimationWorker extracts body keypoints from videos (OpenPose or
// MediaPipe upstream of the Go pipeline). Ground:
// igait-stage4-pose-estimation/src/main.rs is explicitly documented as
// "currently a placeholder that passes through immediately" — the
// compute/GPU-bound keypoint model lives outside the coordination
// substrate this module implements.
type PoseEstimationWorker struct{}

func NewPoseEstimationWorker() *PoseEstimationWorker { return &PoseEstimationWorker{} }

func (w *PoseEstimationWorker) Stage() queue.StageNumber { return queue.Stage4PoseEstimation }
func (w *PoseEstimationWorker) ServiceName() string      { return "igait-stage4-pose-estimation" }

// Process passes the source videos through untouched and stands in the
// front_landmarks/side_landmarks keys cycle detection expects, pointed at
// the same video objects until a real keypoint model is wired in.
func (w *PoseEstimationWorker) Process(ctx context.Context, item queue.QueueItem) queue.ProcessingResult {
	start := time.Now()
	logs := fmt.Sprintf("pose estimation pass-through for job %s: front=%s side=%s\n",
		item.JobID, item.InputKeys["front_video"], item.InputKeys["side_video"])
	return queue.ProcessingResult{
		Code: queue.Success,
		OutputKeys: map[string]string{
			"front_video":     item.InputKeys["front_video"],
			"side_video":      item.InputKeys["side_video"],
			"front_landmarks": item.InputKeys["front_video"],
			"side_landmarks":  item.InputKeys["side_video"],
		},
		Logs:     logs,
		Duration: time.Since(start),
	}
}
