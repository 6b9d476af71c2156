package stages

import (
	"fmt"
	"os"

	"github.com/igait-niu/igait-pipeline/internal/objectstore"
	"github.com/igait-niu/igait-pipeline/internal/queue"
)

// PredictScriptBinary is the default ML prediction entry point, overridable
// via IGAIT_PREDICT_SCRIPT_PATH the way the original read
// PREDICT_SCRIPT_PATH.
const PredictScriptBinary = "/app/iGAIT_MODEL_IO/main.py"

// NewPredictionWorker runs the ASD-classification model over the two
// sides' gait-cycle data and uploads the prediction artifact the finalize
// worker reads.
//
// Grounded on igait-stage6-prediction/src/main.rs's do_prediction:
// download both cycle JSONs, invoke the Python prediction pipeline,
// upload prediction.json for stage 7.
func NewPredictionWorker(objects objectstore.ObjectStore) *ExternalCommandWorker {
	binary := PredictScriptBinary
	if p := os.Getenv("IGAIT_PREDICT_SCRIPT_PATH"); p != "" {
		binary = p
	}
	return &ExternalCommandWorker{
		StageNum:   queue.Stage6Prediction,
		Service:    "igait-stage6-prediction",
		Objects:    objects,
		BinaryPath: "python3",
		InputNames: [2]string{"front_gait_analysis", "side_gait_analysis"},
		BuildArgs: func(outputDir, frontInput, sideInput string) []string {
			return []string{
				binary,
				"--front", frontInput,
				"--side", sideInput,
				"--out", fmt.Sprintf("%s/prediction.json", outputDir),
			}
		},
		Outputs: map[string]string{"prediction.json": "prediction"},
	}
}
