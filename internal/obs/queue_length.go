// Copyright 2025 James Ross
package obs

import (
	"context"
	"fmt"
	"time"

	"github.com/igait-niu/igait-pipeline/internal/config"
	"github.com/igait-niu/igait-pipeline/internal/queue"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StartQueueLengthUpdater samples queue lengths and updates a gauge.
func StartQueueLengthUpdater(ctx context.Context, cfg *config.Config, rdb *redis.Client, log *zap.Logger) {
	interval := 2 * time.Second
	if cfg.Observability.QueueSampleInterval > 0 {
		interval = cfg.Observability.QueueSampleInterval
	}
	// Build set of queues to poll: each stage queue plus finalize, keyed by
	// the label reported on the gauge and valued by its key prefix.
	qset := map[string]string{"finalize": "queues/finalize/"}
	for s := 1; s < queue.NumStages; s++ {
		qset[fmt.Sprintf("stage_%d", s)] = fmt.Sprintf("queues/stage_%d/", s)
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for q, prefix := range qset {
					keys, err := rdb.Keys(ctx, prefix+"*").Result()
					if err != nil {
						log.Debug("queue length poll error", String("queue", q), Err(err))
						continue
					}
					QueueLength.WithLabelValues(q).Set(float64(len(keys)))
				}
			}
		}
	}()
}
