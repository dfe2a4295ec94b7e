// Package main implements the battle node entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/brawlpit/arena/core/rules"
	"github.com/brawlpit/arena/core/types"
	"github.com/brawlpit/arena/node/bus"
	"github.com/brawlpit/arena/node/config"
	"github.com/brawlpit/arena/node/deadline"
	"github.com/brawlpit/arena/node/lifecycle"
	"github.com/brawlpit/arena/node/notify"
	"github.com/brawlpit/arena/node/profile"
	"github.com/brawlpit/arena/node/rpc"
	"github.com/brawlpit/arena/node/store"
	"github.com/brawlpit/arena/node/turns"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
)

func main() {
	app := cli.NewApp()
	app.Name = "arenad"
	app.Version = fmt.Sprintf("%s-%s", Version, GitCommit)
	app.Description = "Authoritative battle node: consumes battle.created events, runs turns, pushes updates to clients"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to the arena.yaml config file",
			EnvVars: []string{"ARENA_CONFIG"},
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "arenad: %v\n", err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := config.Load(cliCtx.String("config"))
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}
	defer rdb.Close()

	clock := types.SystemClock()
	st := store.NewRedisStore(rdb, cfg.StoreOptions())
	hub := notify.NewHub(logger)
	publisher := bus.NewRedisPublisher(rdb)
	profiles := profile.NewRedisSource(rdb)
	balance := rules.StaticBalanceProvider{Value: rules.DefaultBalance()}

	turnService := turns.New(st, hub, publisher, clock, logger)
	lifecycleService := lifecycle.New(st, profiles, balance, hub, clock, logger)

	consumer := bus.NewConsumer(rdb, lifecycleService.HandleBattleCreated, logger)
	worker := deadline.New(cfg.WorkerConfig(), st, turnService, clock, logger)
	rpcServer := rpc.NewServer(rpc.NewServiceBackend(st, turnService), hub, logger)

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics server failed", "error", err)
		}
	}()

	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start bus consumer: %w", err)
	}
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("start deadline worker: %w", err)
	}
	if err := rpcServer.Start(cfg.RPCAddr); err != nil {
		return fmt.Errorf("start rpc server: %w", err)
	}

	log.Infow("arenad started",
		"rpcAddr", cfg.RPCAddr, "metricsAddr", cfg.MetricsAddr,
		"redis", cfg.Redis.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Infow("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop accepting client traffic first, then drain the background loops.
	if err := rpcServer.Stop(shutdownCtx); err != nil {
		log.Errorw("rpc shutdown failed", "error", err)
	}
	consumer.Stop()
	worker.Stop()
	hub.Close()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("metrics shutdown failed", "error", err)
	}

	log.Infow("arenad stopped")
	return nil
}
