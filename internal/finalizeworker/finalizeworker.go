// Package finalizeworker implements stage 7: the terminal worker that
// claims from the finalize queue only, reads prediction.json (or the
// upstream failure context), updates the job's final status, sends the
// matching notification email, and always completes the finalize entry
// regardless of outcome.
//
// Grounded on original_source/igait-stages/igait-stage7-finalize/src/
// main.rs's FinalizeStageWorker: get_prediction_score's
// probabilities-mean-with-class-fallback logic, send_success_email/
// send_failure_email, and the "errors here don't fail the job" policy.
package finalizeworker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/igait-niu/igait-pipeline/internal/email"
	"github.com/igait-niu/igait-pipeline/internal/jobstore"
	"github.com/igait-niu/igait-pipeline/internal/obs"
	"github.com/igait-niu/igait-pipeline/internal/objectstore"
	"github.com/igait-niu/igait-pipeline/internal/pathscheme"
	"github.com/igait-niu/igait-pipeline/internal/queue"
	"github.com/igait-niu/igait-pipeline/internal/stagelog"
	"github.com/igait-niu/igait-pipeline/internal/status"
	"go.uber.org/zap"
)

// ASDThreshold is the score at or above which a job is flagged positive.
const ASDThreshold = 0.5

// predictionResult mirrors the shape stage 6's Python ensemble writes to
// prediction.json.
type predictionResult struct {
	Status        string    `json:"status"`
	Class         *int      `json:"class"`
	Probabilities []float64 `json:"probabilities"`
	Message       string    `json:"message"`
	ErrorType     string    `json:"error_type"`
	ErrorMessage  string    `json:"error_message"`
}

// Worker is the stage-7 finalize implementation.
type Worker struct {
	Queue   *queue.Store
	Objects objectstore.ObjectStore
	Emails  email.Sender
	Jobs    *jobstore.Store
	Logs    *stagelog.Store
	Log     *zap.Logger
}

// ServiceName identifies this worker for worker-ID generation and logging.
func (w *Worker) ServiceName() string { return "igait-stage7-finalize" }

// EmptyBackoff and ErrorBackoff match the stage-worker runtime's poll
// backoffs (§7: 5s on empty/claimed, 10s on error) — finalize has no
// dispatch step, but the same claim-loop pacing applies.
const (
	EmptyBackoff = 5 * time.Second
	ErrorBackoff = 10 * time.Second
	heartbeatInterval = 60 * time.Second
)

// Run drives the claim-heartbeat-process-complete loop against the
// finalize queue until ctx is cancelled. Unlike the numbered-stage
// runtime, there is no dispatch step: every claimed item is removed from
// the queue once Process returns, success or failure, per the "finalize
// always drains" policy.
func (w *Worker) Run(ctx context.Context) {
	workerID := queue.GenerateWorkerID(w.ServiceName())
	for {
		if ctx.Err() != nil {
			return
		}
		result := w.Queue.ClaimFinalize(ctx, workerID)
		switch result.Code {
		case queue.Claimed:
			w.handleClaimed(ctx, workerID, result.Item)
		case queue.QueueEmpty, queue.AllClaimed:
			if !sleepCancellable(ctx, EmptyBackoff) {
				return
			}
		case queue.ClaimError:
			w.Log.Error("finalize claim error", obs.Err(result.Err))
			if !sleepCancellable(ctx, ErrorBackoff) {
				return
			}
		}
	}
}

func (w *Worker) handleClaimed(ctx context.Context, workerID string, item queue.FinalizeQueueItem) {
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				if err := w.Queue.HeartbeatFinalize(ctx, item.JobID, workerID); err != nil {
					return
				}
			}
		}
	}()

	w.Process(ctx, item)
	stopHeartbeat()

	if err := w.Queue.CompleteFinalize(ctx, item.JobID); err != nil {
		w.Log.Error("complete finalize failed", obs.Err(err), obs.String("job_id", item.JobID))
	}
}

func sleepCancellable(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Process runs the full finalize sequence for one finalize queue item,
// always returning Success so the caller removes the finalize entry
// regardless of whether the underlying pipeline run succeeded.
func (w *Worker) Process(ctx context.Context, item queue.FinalizeQueueItem) queue.ProcessingResult {
	start := time.Now()
	var logs strings.Builder
	fmt.Fprintf(&logs, "Starting finalization for job %s\n", item.JobID)

	uid, index, parsedOK := pathscheme.ParseJobID(item.JobID)
	if parsedOK {
		_ = w.Jobs.UpdateStatus(ctx, uid, index, status.NewProcessing(7))
	}

	score, found := w.getPredictionScore(ctx, item.JobID, &logs)

	var outputKeys map[string]string
	if found {
		isASD := score >= ASDThreshold
		fmt.Fprintf(&logs, "Prediction found: score = %.4f\n", score)

		if err := w.sendSuccessEmail(item, score, isASD, &logs); err != nil {
			w.Log.Warn("send success email failed", obs.Err(err), obs.String("job_id", item.JobID))
			fmt.Fprintf(&logs, "WARNING: failed to send email: %v\n", err)
		}

		if parsedOK {
			_ = w.Jobs.UpdateStatus(ctx, uid, index, status.NewComplete(score, isASD))
		}
		outputKeys = map[string]string{
			"score":  fmt.Sprintf("%.6f", score),
			"is_asd": fmt.Sprintf("%t", isASD),
		}
	} else {
		errMsg := firstNonEmpty(item.Error, item.ErrorLogs, "Unknown error — no prediction.json found")
		fmt.Fprintf(&logs, "No prediction found, treating as failure\nError info: %s\n", errMsg)
		if item.FailedAtStage != nil {
			fmt.Fprintf(&logs, "Failed at stage: %d\n", *item.FailedAtStage)
		}

		if err := w.sendFailureEmail(item, errMsg, &logs); err != nil {
			w.Log.Warn("send failure email failed", obs.Err(err), obs.String("job_id", item.JobID))
			fmt.Fprintf(&logs, "WARNING: failed to send email: %v\n", err)
		}

		if parsedOK {
			_ = w.Jobs.UpdateStatus(ctx, uid, index, status.NewError(errMsg))
		}
	}

	if parsedOK {
		_ = w.Logs.AppendStageLog(ctx, uid, index, 7, logs.String())
	}

	return queue.ProcessingResult{
		Code:       queue.Success,
		OutputKeys: outputKeys,
		Logs:       logs.String(),
		Duration:   time.Since(start),
	}
}

// getPredictionScore downloads and parses stage 6's prediction.json. It
// returns ok=false for any read/parse/status failure, an explicitly
// unsuccessful ensemble status, or the "both probabilities and class
// absent" case mandated as an error by spec §9.
func (w *Worker) getPredictionScore(ctx context.Context, jobID string, logs *strings.Builder) (float64, bool) {
	key := pathscheme.PredictionArtifact(jobID)
	data, err := w.Objects.Download(ctx, key)
	if err != nil {
		fmt.Fprintf(logs, "No prediction.json found for %s (error: %v)\n", jobID, err)
		return 0, false
	}

	var result predictionResult
	if err := json.Unmarshal(data, &result); err != nil {
		fmt.Fprintf(logs, "Failed to parse prediction.json for %s: %v\n", jobID, err)
		return 0, false
	}

	if result.Status != "success" {
		fmt.Fprintf(logs, "Prediction failed for %s: %s - %s\n", jobID, result.ErrorType, result.ErrorMessage)
		return 0, false
	}

	if len(result.Probabilities) > 0 {
		sum := 0.0
		for _, p := range result.Probabilities {
			sum += p
		}
		score := sum / float64(len(result.Probabilities))
		fmt.Fprintf(logs, "Computed score for %s by averaging %d probabilities: %.4f\n", jobID, len(result.Probabilities), score)
		return score, true
	}

	if result.Class != nil {
		score := float64(*result.Class)
		fmt.Fprintf(logs, "No probabilities for %s, using class as score: %.0f\n", jobID, score)
		return score, true
	}

	fmt.Fprintf(logs, "Empty probabilities and absent class for %s, treating as error\n", jobID)
	return 0, false
}

func (w *Worker) sendSuccessEmail(item queue.FinalizeQueueItem, score float64, isASD bool, logs *strings.Builder) error {
	if item.Metadata.Email == "" {
		return fmt.Errorf("no email address in job metadata")
	}
	subject, body := email.PredictionSuccess(
		nowCST(), score, isASD,
		item.Metadata.Age, item.Metadata.Ethnicity, item.Metadata.Sex, item.Metadata.Height, item.Metadata.Weight,
		item.UserID, item.JobID,
	)
	fmt.Fprintf(logs, "Sending success email to %s\nScore: %.2f, ASD indicator: %t\n", item.Metadata.Email, score, isASD)
	if err := w.Emails.Send(item.Metadata.Email, subject, body); err != nil {
		return err
	}
	logs.WriteString("Success email sent\n")
	return nil
}

// personNotDetectedStage is the stage whose failures special-case the
// "person not detected" email template per spec §4.7 step 4.
const personNotDetectedStage = 2

func (w *Worker) sendFailureEmail(item queue.FinalizeQueueItem, errMsg string, logs *strings.Builder) error {
	if item.Metadata.Email == "" {
		return fmt.Errorf("no email address in job metadata")
	}

	var subject, body string
	if item.FailedAtStage != nil && *item.FailedAtStage == personNotDetectedStage && strings.Contains(strings.ToLower(errMsg), "person") {
		subject, body = email.ProcessingFailure(nowCST(), item.FailedAtStage, "Person not detected in one or both videos. Please review our recording guidelines and resubmit.", item.UserID, item.JobID)
	} else {
		subject, body = email.ProcessingFailure(nowCST(), item.FailedAtStage, errMsg, item.UserID, item.JobID)
	}

	fmt.Fprintf(logs, "Sending failure email to %s\nFailed at stage: %v, Error: %s\n", item.Metadata.Email, item.FailedAtStage, errMsg)
	if err := w.Emails.Send(item.Metadata.Email, subject, body); err != nil {
		return err
	}
	logs.WriteString("Failure email sent\n")
	return nil
}

func nowCST() string {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		return time.Now().UTC().Format(time.RFC1123)
	}
	return time.Now().In(loc).Format(time.RFC1123)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
