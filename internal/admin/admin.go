// Copyright 2025 James Ross
//
// Package admin implements read-only inspection and destructive
// maintenance commands (stats, peek, purge) over the stage/finalize
// queues, driven by the igait-admin CLI. Grounded on the teacher's
// internal/admin (SCAN-based key counting, JSON-serialized results), but
// rescoped from the teacher's priority-queue model (jobqueue:high,
// jobqueue:low, completed/dead_letter lists) onto this system's
// stage-numbered queue prefixes (queues/stage_{n}/*, queues/finalize/*).
// Uses a separate go-redis v9 client from the primary v8 client the rest
// of the pipeline runs on, exactly as the teacher splits admin/admin-api
// from worker/producer.
package admin

import (
	"context"
	"fmt"

	"github.com/igait-niu/igait-pipeline/internal/queue"
	"github.com/redis/go-redis/v9"
)

// StatsResult reports how many jobs currently sit in each stage and
// finalize queue.
type StatsResult struct {
	StageQueues  map[string]int64 `json:"stage_queues"`
	FinalizeSize int64            `json:"finalize_queue"`
}

func stageQueuePrefix(stage int) string { return fmt.Sprintf("queues/stage_%d/", stage) }

const finalizeQueuePrefix = "queues/finalize/"

// Stats counts entries in every stage queue and the finalize queue via SCAN.
func Stats(ctx context.Context, rdb *redis.Client) (StatsResult, error) {
	res := StatsResult{StageQueues: map[string]int64{}}
	for stage := 1; stage <= queue.NumStages-1; stage++ {
		n, err := countPrefix(ctx, rdb, stageQueuePrefix(stage))
		if err != nil {
			return res, fmt.Errorf("count stage %d: %w", stage, err)
		}
		res.StageQueues[fmt.Sprintf("stage_%d", stage)] = n
	}
	n, err := countPrefix(ctx, rdb, finalizeQueuePrefix)
	if err != nil {
		return res, fmt.Errorf("count finalize: %w", err)
	}
	res.FinalizeSize = n
	return res, nil
}

func countPrefix(ctx context.Context, rdb *redis.Client, prefix string) (int64, error) {
	var count int64
	var cursor uint64
	for {
		keys, cur, err := rdb.Scan(ctx, cursor, prefix+"*", 500).Result()
		if err != nil {
			return 0, err
		}
		count += int64(len(keys))
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return count, nil
}

// PeekResult is the raw JSON payload of up to n items in a queue.
type PeekResult struct {
	Queue string   `json:"queue"`
	Items []string `json:"items"`
}

// queueKeyPrefix resolves "stage_N" or "finalize" to its scan prefix.
func queueKeyPrefix(alias string) (string, error) {
	if alias == "finalize" {
		return finalizeQueuePrefix, nil
	}
	var stage int
	if _, err := fmt.Sscanf(alias, "stage_%d", &stage); err == nil && stage >= 1 && stage < queue.NumStages {
		return stageQueuePrefix(stage), nil
	}
	return "", fmt.Errorf("unknown queue alias %q; expected stage_1..stage_6 or finalize", alias)
}

// Peek returns the raw JSON bodies of up to n items in queueAlias
// ("stage_1".."stage_6" or "finalize").
func Peek(ctx context.Context, rdb *redis.Client, queueAlias string, n int64) (PeekResult, error) {
	prefix, err := queueKeyPrefix(queueAlias)
	if err != nil {
		return PeekResult{}, err
	}
	if n <= 0 {
		n = 10
	}

	items := make([]string, 0, n)
	var cursor uint64
	for int64(len(items)) < n {
		keys, cur, err := rdb.Scan(ctx, cursor, prefix+"*", 500).Result()
		if err != nil {
			return PeekResult{}, err
		}
		for _, k := range keys {
			if int64(len(items)) >= n {
				break
			}
			v, err := rdb.Get(ctx, k).Result()
			if err != nil {
				continue
			}
			items = append(items, v)
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return PeekResult{Queue: queueAlias, Items: items}, nil
}

// PurgeQueue deletes every entry in queueAlias. Used for recovering a
// stage after a bad deploy; callers must gate this behind an explicit
// confirmation flag.
func PurgeQueue(ctx context.Context, rdb *redis.Client, queueAlias string) (int64, error) {
	prefix, err := queueKeyPrefix(queueAlias)
	if err != nil {
		return 0, err
	}
	var deleted int64
	var cursor uint64
	for {
		keys, cur, err := rdb.Scan(ctx, cursor, prefix+"*", 500).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}
