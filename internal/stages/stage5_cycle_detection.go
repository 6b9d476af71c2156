package stages

import (
	"fmt"
	"os"

	"github.com/igait-niu/igait-pipeline/internal/objectstore"
	"github.com/igait-niu/igait-pipeline/internal/queue"
)

// GaitScriptBinary is the default gait-cycle-detection script path,
// overridable via IGAIT_GAIT_SCRIPT_PATH the way the original read
// GAIT_SCRIPT_PATH.
const GaitScriptBinary = "/app/gait_analysis_mediapipe.py"

// NewCycleDetectionWorker runs rhythmic template matching over pose
// landmark data to identify individual gait cycles.
//
// Grounded on igait-stage5-cycle-detection/src/main.rs's
// do_cycle_detection: run a Python script per side, upload the resulting
// cycle-index JSON alongside the pass-through video.
func NewCycleDetectionWorker(objects objectstore.ObjectStore) *ExternalCommandWorker {
	binary := GaitScriptBinary
	if p := os.Getenv("IGAIT_GAIT_SCRIPT_PATH"); p != "" {
		binary = p
	}
	return &ExternalCommandWorker{
		StageNum:        queue.Stage5CycleDetection,
		Service:         "igait-stage5-cycle-detection",
		Objects:         objects,
		BinaryPath:      "python3",
		InputNames:      [2]string{"front_landmarks", "side_landmarks"},
		PassThroughKeys: []string{"front_video", "side_video"},
		BuildArgs: func(outputDir, frontInput, sideInput string) []string {
			return []string{
				binary,
				"--front", frontInput,
				"--side", sideInput,
				"--out-front", fmt.Sprintf("%s/front_gait_analysis.json", outputDir),
				"--out-side", fmt.Sprintf("%s/side_gait_analysis.json", outputDir),
			}
		},
		Outputs: map[string]string{
			"front_gait_analysis.json": "front_gait_analysis",
			"side_gait_analysis.json":  "side_gait_analysis",
		},
	}
}
