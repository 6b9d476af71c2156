package stages

import (
	"fmt"
	"os"

	"github.com/igait-niu/igait-pipeline/internal/objectstore"
	"github.com/igait-niu/igait-pipeline/internal/queue"
)

// FFmpegBinary is the default ffmpeg path, overridable for local dev via
// the IGAIT_FFMPEG_PATH environment variable.
const FFmpegBinary = "ffmpeg"

// NewMediaConversionWorker standardizes uploaded videos to 1920x1080,
// 60fps, H.264/AAC before any downstream stage runs.
//
// Grounded on igait-stage1-media-conversion/src/main.rs's do_conversion:
// download both views, invoke ffmpeg with a fixed filter/codec set, upload
// the results under the stage's own directory.
func NewMediaConversionWorker(objects objectstore.ObjectStore) *ExternalCommandWorker {
	binary := FFmpegBinary
	if p := os.Getenv("IGAIT_FFMPEG_PATH"); p != "" {
		binary = p
	}
	return &ExternalCommandWorker{
		StageNum:   queue.Stage1MediaConversion,
		Service:    "igait-stage1-media-conversion",
		Objects:    objects,
		BinaryPath: binary,
		InputNames: [2]string{"front_video", "side_video"},
		BuildArgs: func(outputDir, frontInput, sideInput string) []string {
			return []string{
				"-y",
				"-i", frontInput,
				"-i", sideInput,
				"-filter_complex",
				"[0:v]scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2,fps=60[front];" +
					"[1:v]scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2,fps=60[side]",
				"-map", "[front]", "-c:v", "libx264", "-c:a", "aac", "-b:a", "192k",
				fmt.Sprintf("%s/front.mp4", outputDir),
				"-map", "[side]", "-c:v", "libx264", "-c:a", "aac", "-b:a", "192k",
				fmt.Sprintf("%s/side.mp4", outputDir),
			}
		},
		Outputs: map[string]string{"front.mp4": "front_video", "side.mp4": "side_video"},
	}
}
