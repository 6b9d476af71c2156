// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/igait-niu/igait-pipeline/internal/config"
	"github.com/igait-niu/igait-pipeline/internal/email"
	"github.com/igait-niu/igait-pipeline/internal/finalizeworker"
	"github.com/igait-niu/igait-pipeline/internal/jobstore"
	"github.com/igait-niu/igait-pipeline/internal/obs"
	"github.com/igait-niu/igait-pipeline/internal/objectstore"
	"github.com/igait-niu/igait-pipeline/internal/queue"
	"github.com/igait-niu/igait-pipeline/internal/redisclient"
	"github.com/igait-niu/igait-pipeline/internal/rtdb"
	"github.com/igait-niu/igait-pipeline/internal/stagelog"
)

var version = "dev"

func main() {
	var configPath string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
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

	emailClient, err := email.New(email.Config{
		Region:          cfg.Email.Region,
		FromAddress:     cfg.Email.FromAddress,
		FromIdentityARN: cfg.Email.FromIdentityARN,
	})
	if err != nil {
		logger.Fatal("failed to init email client", obs.Err(err))
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

	worker := &finalizeworker.Worker{
		Queue:   q,
		Objects: objects,
		Emails:  emailClient,
		Jobs:    jobs,
		Logs:    logs,
		Log:     logger,
	}
	worker.Run(ctx)
}
