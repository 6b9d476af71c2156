// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/igait-niu/igait-pipeline/internal/breaker"
	"github.com/igait-niu/igait-pipeline/internal/config"
	"github.com/igait-niu/igait-pipeline/internal/jobstore"
	"github.com/igait-niu/igait-pipeline/internal/obs"
	"github.com/igait-niu/igait-pipeline/internal/objectstore"
	"github.com/igait-niu/igait-pipeline/internal/queue"
	"github.com/igait-niu/igait-pipeline/internal/redisclient"
	"github.com/igait-niu/igait-pipeline/internal/rtdb"
	"github.com/igait-niu/igait-pipeline/internal/stagelog"
	"github.com/igait-niu/igait-pipeline/internal/stages"
	"github.com/igait-niu/igait-pipeline/internal/stageworker"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var configPath string
	var stage int
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.IntVar(&stage, "stage", 0, "Stage number to run (1-6); 0 runs all six in this process")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	rdb := redisclient.New(cfg)
	defer rdb.Close()
	store := rtdb.NewRedisStore(rdb)
	jobs := jobstore.NewStore(store)
	q := queue.NewStore(store)
	logs := stagelog.NewStore(store)

	objects, err := objectstore.New(context.Background(), objectstore.Config{
		Bucket:          cfg.ObjectStore.Bucket,
		Region:          cfg.ObjectStore.Region,
		Endpoint:        cfg.ObjectStore.Endpoint,
		AccessKeyID:     cfg.ObjectStore.AccessKeyID,
		SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
	})
	if err != nil {
		logger.Fatal("failed to init object store", obs.Err(err))
	}

	readyCheck := func(c context.Context) error {
		_, err := rdb.Ping(c).Result()
		return err
	}
	httpSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	obs.StartQueueLengthUpdater(ctx, cfg, rdb, logger)

	workers := stageWorkers(objects)
	if stage != 0 {
		w, ok := workers[stage]
		if !ok {
			logger.Fatal("unknown stage", obs.Int("stage", stage))
		}
		runStage(ctx, cfg, q, jobs, logs, logger, w)
		return
	}

	var wg sync.WaitGroup
	for s := 1; s <= queue.NumStages-1; s++ {
		w := workers[s]
		wg.Add(1)
		go func() {
			defer wg.Done()
			runStage(ctx, cfg, q, jobs, logs, logger, w)
		}()
	}
	wg.Wait()
}

func newBreaker(cfg *config.Config) *breaker.CircuitBreaker {
	return breaker.New(cfg.CircuitBreaker.Window, cfg.CircuitBreaker.CooldownPeriod, cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.MinSamples)
}

func stageWorkers(objects objectstore.ObjectStore) map[int]stageworker.StageWorker {
	return map[int]stageworker.StageWorker{
		1: stages.NewMediaConversionWorker(objects),
		2: stages.NewValidityCheckWorker(),
		3: stages.NewReframingWorker(),
		4: stages.NewPoseEstimationWorker(),
		5: stages.NewCycleDetectionWorker(objects),
		6: stages.NewPredictionWorker(objects),
	}
}

func runStage(ctx context.Context, cfg *config.Config, q *queue.Store, jobs *jobstore.Store, logs *stagelog.Store, logger *zap.Logger, w stageworker.StageWorker) {
	cb := newBreaker(cfg)
	rt := stageworker.NewRuntime(q, jobs, logs, logger, cb, w)
	rt.Run(ctx, w)
}
