// Package stageworker implements the uniform poll-claim-process-dispatch
// loop shared by every pipeline stage: claim an item, heartbeat while
// processing, dispatch to the next stage (or finalize) on success, and
// route failures to the finalize queue with the failing stage recorded.
//
// Grounded on the teacher's internal/worker (goroutine-per-slot runtime,
// circuit breaker, span/metric wiring) and internal/reaper (the
// stale-claim-recovery concept, here folded into Queue.Claim itself
// instead of a separate sweep).
package stageworker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/igait-niu/igait-pipeline/internal/breaker"
	"github.com/igait-niu/igait-pipeline/internal/jobstore"
	"github.com/igait-niu/igait-pipeline/internal/obs"
	"github.com/igait-niu/igait-pipeline/internal/pathscheme"
	"github.com/igait-niu/igait-pipeline/internal/queue"
	"github.com/igait-niu/igait-pipeline/internal/status"
	"go.uber.org/zap"
)

// StageWorker is the capability every pipeline stage implements; the
// runtime supplies everything else (claiming, heartbeating, dispatch).
type StageWorker interface {
	Stage() queue.StageNumber
	ServiceName() string
	Process(ctx context.Context, item queue.QueueItem) queue.ProcessingResult
}

// EmptyBackoff and ErrorBackoff are the runtime's poll backoffs, matching
// §7's propagation policy (5s on empty/claimed, 10s on error).
const (
	EmptyBackoff = 5 * time.Second
	ErrorBackoff = 10 * time.Second
	breakerPause = 100 * time.Millisecond
)

// Runtime drives one or more StageWorker instances against a queue.Store.
type Runtime struct {
	Queue    *queue.Store
	Jobs     *jobstore.Store
	Logs     StageLogger
	Log      *zap.Logger
	Breaker  *breaker.CircuitBreaker
	WorkerID string
}

// StageLogger appends a worker's log output for a given job/stage so it
// is visible on the job's stage_logs record.
type StageLogger interface {
	AppendStageLog(ctx context.Context, uid string, index, stage int, logs string) error
}

// NewRuntime builds a Runtime with a fresh worker identity for worker.
func NewRuntime(q *queue.Store, jobs *jobstore.Store, logs StageLogger, log *zap.Logger, cb *breaker.CircuitBreaker, worker StageWorker) *Runtime {
	return &Runtime{
		Queue:    q,
		Jobs:     jobs,
		Logs:     logs,
		Log:      log,
		Breaker:  cb,
		WorkerID: queue.GenerateWorkerID(worker.ServiceName()),
	}
}

// Run executes the claim-process-dispatch loop until ctx is cancelled. It
// returns once the current iteration (including any in-flight process
// call) finishes after cancellation is observed.
func (r *Runtime) Run(ctx context.Context, worker StageWorker) {
	stage := int(worker.Stage())
	obs.WorkerActive.Inc()
	defer obs.WorkerActive.Dec()

	for {
		if ctx.Err() != nil {
			return
		}
		if r.Breaker != nil && !r.Breaker.Allow() {
			if !sleepCancellable(ctx, breakerPause) {
				return
			}
			continue
		}

		result := r.Queue.Claim(ctx, stage, r.WorkerID)
		switch result.Code {
		case queue.Claimed:
			ok := r.handleClaimed(ctx, worker, stage, result.Item)
			if r.Breaker != nil {
				r.Breaker.Record(ok)
			}
		case queue.QueueEmpty, queue.AllClaimed:
			if !sleepCancellable(ctx, EmptyBackoff) {
				return
			}
		case queue.ClaimError:
			r.Log.Warn("claim error", obs.Err(result.Err), obs.Int("stage", stage))
			if !sleepCancellable(ctx, ErrorBackoff) {
				return
			}
		}
	}
}

func (r *Runtime) handleClaimed(ctx context.Context, worker StageWorker, stage int, item queue.QueueItem) bool {
	obs.JobsConsumed.Inc()

	uid, index, ok := pathscheme.ParseJobID(item.JobID)
	if ok {
		_ = r.Jobs.UpdateStatus(ctx, uid, index, status.NewProcessing(stage))
	}

	// procCtx is cancelled either by our own stopHeartbeat on completion or
	// by runHeartbeat itself the moment it detects the claim was stolen, so
	// Process observes claim loss through the same context it runs under.
	procCtx, stopHeartbeat := context.WithCancel(ctx)
	var claimLost atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.runHeartbeat(procCtx, stopHeartbeat, &claimLost, stage, item.JobID)
	}()

	spanCtx, span := obs.ContextWithJobSpan(procCtx, stage, item)
	start := time.Now()
	result := worker.Process(spanCtx, item)
	span.End()

	stopHeartbeat()
	wg.Wait()

	obs.JobProcessingDuration.Observe(time.Since(start).Seconds())

	if claimLost.Load() {
		r.Log.Warn("claim lost mid-process, discarding results", obs.String("job_id", item.JobID), obs.Int("stage", stage))
		return false
	}

	if ok {
		_ = r.Logs.AppendStageLog(ctx, uid, index, stage, result.Logs)
	}

	switch result.Code {
	case queue.Success:
		r.dispatchSuccess(ctx, stage, item, result)
		return true
	case queue.Failure:
		r.dispatchFailure(ctx, stage, item, result)
		return false
	default:
		return false
	}
}

func (r *Runtime) dispatchSuccess(ctx context.Context, stage int, item queue.QueueItem, result queue.ProcessingResult) {
	if stage < queue.NumStages {
		next := queue.QueueItem{
			JobID:            item.JobID,
			UserID:           item.UserID,
			InputKeys:        result.OutputKeys,
			Metadata:         item.Metadata,
			RequiresApproval: item.RequiresApproval,
		}
		if stage+1 == int(queue.Stage7Finalize) {
			// stage 6 hands off to finalize, not to a numbered stage queue
			fin := queue.FinalizeQueueItem{QueueItem: next, Success: true}
			if err := r.Queue.EnqueueFinalize(ctx, fin); err != nil {
				r.Log.Error("enqueue finalize", obs.Err(err), obs.String("job_id", item.JobID))
			}
		} else if err := r.Queue.EnqueueStage(ctx, stage+1, next); err != nil {
			r.Log.Error("enqueue next stage", obs.Err(err), obs.String("job_id", item.JobID))
		}
	}
	if err := r.Queue.Complete(ctx, stage, item.JobID); err != nil {
		r.Log.Error("complete stage", obs.Err(err), obs.String("job_id", item.JobID))
	}
}

func (r *Runtime) dispatchFailure(ctx context.Context, stage int, item queue.QueueItem, result queue.ProcessingResult) {
	failedStage := stage
	fin := queue.FinalizeQueueItem{
		QueueItem:     item,
		Success:       false,
		Error:         result.Error,
		ErrorLogs:     result.Logs,
		FailedAtStage: &failedStage,
	}
	if err := r.Queue.EnqueueFinalize(ctx, fin); err != nil {
		r.Log.Error("enqueue finalize on failure", obs.Err(err), obs.String("job_id", item.JobID))
	}
	if err := r.Queue.Complete(ctx, stage, item.JobID); err != nil {
		r.Log.Error("complete failed stage", obs.Err(err), obs.String("job_id", item.JobID))
	}
}

// runHeartbeat renews the claim every HeartbeatInterval until ctx is
// cancelled. If the claim was stolen, the worker must abort processing and
// discard results, so runHeartbeat marks claimLost and cancels cancelProc
// (the same context Process runs under) instead of merely stopping itself.
func (r *Runtime) runHeartbeat(ctx context.Context, cancelProc context.CancelFunc, claimLost *atomic.Bool, stage int, jobID string) {
	ticker := time.NewTicker(queue.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Queue.Heartbeat(ctx, stage, jobID, r.WorkerID); err != nil {
				r.Log.Warn("heartbeat lost claim, aborting process", obs.Err(err), obs.String("job_id", jobID))
				claimLost.Store(true)
				cancelProc()
				return
			}
		}
	}
}

// sleepCancellable sleeps for d or until ctx is cancelled, returning false
// in the latter case so callers can exit promptly on shutdown.
func sleepCancellable(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
