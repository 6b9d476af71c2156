// Copyright 2025 James Ross
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/igait-niu/igait-pipeline/internal/admin"
	"github.com/igait-niu/igait-pipeline/internal/config"
	"github.com/igait-niu/igait-pipeline/internal/obs"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	var configPath string
	var adminCmd string
	var adminQueue string
	var adminN int
	var adminYes bool
	var showVersion bool

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&adminCmd, "admin-cmd", "", "Admin command: stats|peek|purge")
	fs.StringVar(&adminQueue, "queue", "", "Queue alias for peek/purge: stage_1..stage_6|finalize")
	fs.IntVar(&adminN, "n", 10, "Number of items for admin peek")
	fs.BoolVar(&adminYes, "yes", false, "Automatic yes to prompts (dangerous operations)")
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

	rdb := newV9Client(cfg)
	defer rdb.Close()

	ctx := context.Background()

	switch adminCmd {
	case "stats":
		res, err := admin.Stats(ctx, rdb)
		if err != nil {
			logger.Fatal("admin stats error", obs.Err(err))
		}
		printJSON(res)
	case "peek":
		if adminQueue == "" {
			logger.Fatal("admin peek requires --queue")
		}
		res, err := admin.Peek(ctx, rdb, adminQueue, int64(adminN))
		if err != nil {
			logger.Fatal("admin peek error", obs.Err(err))
		}
		printJSON(res)
	case "purge":
		if adminQueue == "" {
			logger.Fatal("admin purge requires --queue")
		}
		if !adminYes {
			logger.Fatal("refusing to purge without --yes")
		}
		n, err := admin.PurgeQueue(ctx, rdb, adminQueue)
		if err != nil {
			logger.Fatal("admin purge error", obs.Err(err))
		}
		printJSON(struct {
			Purged int64 `json:"purged"`
		}{Purged: n})
	default:
		logger.Fatal("unknown admin command, expected stats|peek|purge", obs.String("cmd", adminCmd))
	}
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// newV9Client mirrors internal/redisclient.New's pooling defaults but on
// the v9 client, since internal/admin's SCAN-heavy inspection commands run
// against go-redis/v9 rather than the primary v8 client the rest of the
// pipeline uses for CAS operations.
func newV9Client(cfg *config.Config) *redis.Client {
	poolSize := cfg.Redis.PoolSizeMultiplier * runtime.NumCPU()
	if poolSize <= 0 {
		poolSize = 10 * runtime.NumCPU()
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     poolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		MaxRetries:   cfg.Redis.MaxRetries,
	})
}
