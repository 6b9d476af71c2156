// Package queue implements the claim-based distributed work queues that
// move jobs between pipeline stages: QueueItem/FinalizeQueueItem as the
// wire format, and Store as the claim/heartbeat/complete/release protocol
// built on top of internal/rtdb's compare-and-set primitive.
//
// This replaces the teacher's list-based BRPOPLPUSH queue (internal/queue's
// original Job/Marshal/UnmarshalJob) with a per-key claim model: each job
// occupies exactly one key under queues/stage_{n}/ or queues/finalize/,
// and claiming is a CAS on that key rather than an atomic list pop.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/igait-niu/igait-pipeline/internal/rtdb"
)

// ClaimTimeout is the age beyond which a claim's heartbeat is considered
// stale and another worker may re-claim the item.
const ClaimTimeout = 50 * time.Minute

// HeartbeatInterval is the cadence at which a worker renews its claim while
// processing.
const HeartbeatInterval = 60 * time.Second

const NumStages = 7

// StageNumber identifies one of the seven pipeline stages.
type StageNumber int

const (
	Stage1MediaConversion StageNumber = 1
	Stage2ValidityCheck   StageNumber = 2
	Stage3Reframing       StageNumber = 3
	Stage4PoseEstimation  StageNumber = 4
	Stage5CycleDetection  StageNumber = 5
	Stage6Prediction      StageNumber = 6
	Stage7Finalize        StageNumber = 7
)

func (s StageNumber) Valid() bool { return s >= 1 && s <= NumStages }

func (s StageNumber) Name() string {
	switch s {
	case Stage1MediaConversion:
		return "Media Conversion"
	case Stage2ValidityCheck:
		return "Validity Check"
	case Stage3Reframing:
		return "Reframing"
	case Stage4PoseEstimation:
		return "Pose Estimation"
	case Stage5CycleDetection:
		return "Cycle Detection"
	case Stage6Prediction:
		return "Prediction"
	case Stage7Finalize:
		return "Finalize"
	default:
		return "Unknown"
	}
}

// StoragePrefix returns the "stage_N" directory name for this stage.
func (s StageNumber) StoragePrefix() string {
	return fmt.Sprintf("stage_%d", int(s))
}

// GenerateWorkerID builds a worker identity unique for the process
// lifetime: "{service_name}-{random_suffix}". A UUID suffix is used rather
// than the teacher's hostname+pid+timestamp+hex scheme, since stage-worker
// binaries are typically started many-at-once as container replicas, where
// hostname/pid collisions are more likely than in a bare-metal deployment.
func GenerateWorkerID(serviceName string) string {
	return fmt.Sprintf("%s-%s", serviceName, uuid.NewString())
}

// Metadata carries the patient/contact fields threaded through every
// QueueItem so that any stage (and ultimately the finalize worker) can
// reach them without a second database round trip.
type Metadata struct {
	Age       int    `json:"age,omitempty"`
	Sex       string `json:"sex,omitempty"`
	Ethnicity string `json:"ethnicity,omitempty"`
	Height    string `json:"height,omitempty"`
	Weight    int    `json:"weight,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Claim is the lease a worker holds on a queue item, refreshed by
// heartbeats and observed by claim() to detect staleness.
type Claim struct {
	WorkerID      string `json:"worker_id"`
	ClaimedAtMs   int64  `json:"claimed_at_ms"`
	HeartbeatAtMs int64  `json:"heartbeat_at_ms"`
}

func (c *Claim) stale(now int64) bool {
	return now-c.HeartbeatAtMs > ClaimTimeout.Milliseconds()
}

// QueueItem is the work unit held at queues/stage_{n}/{job_id}.
type QueueItem struct {
	JobID            string            `json:"job_id"`
	UserID           string            `json:"user_id"`
	InputKeys        map[string]string `json:"input_keys"`
	Metadata         Metadata          `json:"metadata"`
	RequiresApproval bool              `json:"requires_approval"`
	Claim            *Claim            `json:"claim,omitempty"`
	Attempts         int               `json:"attempts"`
}

// FinalizeQueueItem is the work unit held at queues/finalize/{job_id}. It
// carries everything QueueItem does plus the upstream pipeline's result.
type FinalizeQueueItem struct {
	QueueItem
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	ErrorLogs     string `json:"error_logs,omitempty"`
	FailedAtStage *int   `json:"failed_at_stage,omitempty"`
}

// ClaimCode is the discriminant of ClaimResult.
type ClaimCode string

const (
	Claimed    ClaimCode = "Claimed"
	QueueEmpty ClaimCode = "QueueEmpty"
	AllClaimed ClaimCode = "AllClaimed"
	ClaimError ClaimCode = "Error"
)

// ClaimResult is the tagged-variant result of a claim attempt: Item is only
// valid when Code == Claimed, Err only when Code == ClaimError.
type ClaimResult struct {
	Code ClaimCode
	Item QueueItem
	Err  error
}

// FinalizeClaimResult mirrors ClaimResult for the finalize queue: Item is
// only valid when Code == Claimed, Err only when Code == ClaimError.
type FinalizeClaimResult struct {
	Code ClaimCode
	Item FinalizeQueueItem
	Err  error
}

// ProcResultCode is the discriminant of ProcessingResult.
type ProcResultCode string

const (
	Success ProcResultCode = "Success"
	Failure ProcResultCode = "Failure"
)

// ProcessingResult is what a StageWorker.Process call returns: OutputKeys
// is only valid when Code == Success, Error only when Code == Failure.
type ProcessingResult struct {
	Code       ProcResultCode
	OutputKeys map[string]string
	Logs       string
	Error      string
	Duration   time.Duration
}

func nowMs() int64 { return time.Now().UnixMilli() }

func stagePrefix(stage int) string      { return fmt.Sprintf("queues/stage_%d/", stage) }
func stageItemKey(stage int, jobID string) string {
	return fmt.Sprintf("queues/stage_%d/%s", stage, jobID)
}

const finalizePrefix = "queues/finalize/"

func finalizeItemKey(jobID string) string { return finalizePrefix + jobID }

// Store implements the claim protocol over an rtdb.Store.
type Store struct {
	rtdb rtdb.Store
}

func NewStore(s rtdb.Store) *Store {
	return &Store{rtdb: s}
}

// EnqueueStage writes item unconditionally at queues/stage_{stage}/{job_id}.
// Overwriting an existing entry is how rerun replaces a stale item.
func (s *Store) EnqueueStage(ctx context.Context, stage int, item QueueItem) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	if err := s.rtdb.Set(ctx, stageItemKey(stage, item.JobID), string(b)); err != nil {
		return fmt.Errorf("enqueue stage %d job %s: %w", stage, item.JobID, err)
	}
	return nil
}

// EnqueueFinalize writes item unconditionally at queues/finalize/{job_id}.
func (s *Store) EnqueueFinalize(ctx context.Context, item FinalizeQueueItem) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal finalize item: %w", err)
	}
	if err := s.rtdb.Set(ctx, finalizeItemKey(item.JobID), string(b)); err != nil {
		return fmt.Errorf("enqueue finalize job %s: %w", item.JobID, err)
	}
	return nil
}

// Claim scans queues/stage_{stage}/ and attempts to CAS-acquire the first
// candidate whose claim is absent or stale, per the protocol in §4.3: read,
// check staleness, CAS-write a fresh claim, return on first success.
func (s *Store) Claim(ctx context.Context, stage int, workerID string) ClaimResult {
	keys, err := s.rtdb.ScanPrefix(ctx, stagePrefix(stage))
	if err != nil {
		return ClaimResult{Code: ClaimError, Err: fmt.Errorf("scan stage %d: %w", stage, err)}
	}
	if len(keys) == 0 {
		return ClaimResult{Code: QueueEmpty}
	}

	now := nowMs()
	for _, key := range keys {
		var claimedItem QueueItem
		err := s.rtdb.CompareAndSwap(ctx, key, func(current string, exists bool) (string, bool, error) {
			if !exists {
				return "", false, nil // completed/removed mid-scan
			}
			var item QueueItem
			if err := json.Unmarshal([]byte(current), &item); err != nil {
				return "", false, fmt.Errorf("unmarshal %s: %w", key, err)
			}
			if item.Claim != nil && !item.Claim.stale(now) {
				return "", false, nil // actively held
			}
			item.Claim = &Claim{WorkerID: workerID, ClaimedAtMs: now, HeartbeatAtMs: now}
			next, err := json.Marshal(item)
			if err != nil {
				return "", false, err
			}
			claimedItem = item
			return string(next), true, nil
		})
		switch {
		case err == nil:
			return ClaimResult{Code: Claimed, Item: claimedItem}
		case errors.Is(err, rtdb.ErrAborted):
			continue
		default:
			return ClaimResult{Code: ClaimError, Err: fmt.Errorf("claim %s: %w", key, err)}
		}
	}
	return ClaimResult{Code: AllClaimed}
}

// ClaimFinalize scans queues/finalize/ and attempts to CAS-acquire the
// first candidate whose claim is absent or stale, identical in protocol to
// Claim but over FinalizeQueueItem.
func (s *Store) ClaimFinalize(ctx context.Context, workerID string) FinalizeClaimResult {
	keys, err := s.rtdb.ScanPrefix(ctx, finalizePrefix)
	if err != nil {
		return FinalizeClaimResult{Code: ClaimError, Err: fmt.Errorf("scan finalize: %w", err)}
	}
	if len(keys) == 0 {
		return FinalizeClaimResult{Code: QueueEmpty}
	}

	now := nowMs()
	for _, key := range keys {
		var claimedItem FinalizeQueueItem
		err := s.rtdb.CompareAndSwap(ctx, key, func(current string, exists bool) (string, bool, error) {
			if !exists {
				return "", false, nil
			}
			var item FinalizeQueueItem
			if err := json.Unmarshal([]byte(current), &item); err != nil {
				return "", false, fmt.Errorf("unmarshal %s: %w", key, err)
			}
			if item.Claim != nil && !item.Claim.stale(now) {
				return "", false, nil
			}
			item.Claim = &Claim{WorkerID: workerID, ClaimedAtMs: now, HeartbeatAtMs: now}
			next, err := json.Marshal(item)
			if err != nil {
				return "", false, err
			}
			claimedItem = item
			return string(next), true, nil
		})
		switch {
		case err == nil:
			return FinalizeClaimResult{Code: Claimed, Item: claimedItem}
		case errors.Is(err, rtdb.ErrAborted):
			continue
		default:
			return FinalizeClaimResult{Code: ClaimError, Err: fmt.Errorf("claim %s: %w", key, err)}
		}
	}
	return FinalizeClaimResult{Code: AllClaimed}
}

// HeartbeatFinalize renews claim.heartbeat_at_ms for workerID's claim on
// queues/finalize/{job_id}.
func (s *Store) HeartbeatFinalize(ctx context.Context, jobID, workerID string) error {
	key := finalizeItemKey(jobID)
	err := s.rtdb.CompareAndSwap(ctx, key, func(current string, exists bool) (string, bool, error) {
		if !exists {
			return "", false, ErrClaimLost
		}
		var item FinalizeQueueItem
		if err := json.Unmarshal([]byte(current), &item); err != nil {
			return "", false, err
		}
		if item.Claim == nil || item.Claim.WorkerID != workerID {
			return "", false, ErrClaimLost
		}
		item.Claim.HeartbeatAtMs = nowMs()
		next, err := json.Marshal(item)
		if err != nil {
			return "", false, err
		}
		return string(next), true, nil
	})
	return err
}

// ErrClaimLost is returned by Heartbeat when the claim was stolen by
// another worker (CAS observed a different or absent holder). Callers must
// abort processing and discard results on this error.
var ErrClaimLost = errors.New("queue: claim lost")

// Heartbeat renews claim.heartbeat_at_ms for workerID's claim on
// queues/stage_{stage}/{job_id}. Returns ErrClaimLost if workerID no longer
// holds the claim.
func (s *Store) Heartbeat(ctx context.Context, stage int, jobID, workerID string) error {
	key := stageItemKey(stage, jobID)
	err := s.rtdb.CompareAndSwap(ctx, key, func(current string, exists bool) (string, bool, error) {
		if !exists {
			return "", false, ErrClaimLost
		}
		var item QueueItem
		if err := json.Unmarshal([]byte(current), &item); err != nil {
			return "", false, err
		}
		if item.Claim == nil || item.Claim.WorkerID != workerID {
			return "", false, ErrClaimLost
		}
		item.Claim.HeartbeatAtMs = nowMs()
		next, err := json.Marshal(item)
		if err != nil {
			return "", false, err
		}
		return string(next), true, nil
	})
	if err != nil {
		return err
	}
	return nil
}

// Complete deletes the stage queue entry. Always succeeds even if the
// claimant changed in the meantime — the item is done either way.
func (s *Store) Complete(ctx context.Context, stage int, jobID string) error {
	if err := s.rtdb.Delete(ctx, stageItemKey(stage, jobID)); err != nil {
		return fmt.Errorf("complete stage %d job %s: %w", stage, jobID, err)
	}
	return nil
}

// CompleteFinalize deletes the finalize queue entry.
func (s *Store) CompleteFinalize(ctx context.Context, jobID string) error {
	if err := s.rtdb.Delete(ctx, finalizeItemKey(jobID)); err != nil {
		return fmt.Errorf("complete finalize job %s: %w", jobID, err)
	}
	return nil
}

// Release clears the claim and increments attempts, used when a worker
// voluntarily relinquishes an item instead of completing or failing it.
func (s *Store) Release(ctx context.Context, stage int, jobID string) error {
	key := stageItemKey(stage, jobID)
	err := s.rtdb.CompareAndSwap(ctx, key, func(current string, exists bool) (string, bool, error) {
		if !exists {
			return "", false, nil
		}
		var item QueueItem
		if err := json.Unmarshal([]byte(current), &item); err != nil {
			return "", false, err
		}
		item.Claim = nil
		item.Attempts++
		next, err := json.Marshal(item)
		if err != nil {
			return "", false, err
		}
		return string(next), true, nil
	})
	if err != nil && !errors.Is(err, rtdb.ErrAborted) {
		return fmt.Errorf("release stage %d job %s: %w", stage, jobID, err)
	}
	return nil
}
