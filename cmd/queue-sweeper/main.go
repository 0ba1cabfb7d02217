// queue-sweeper is the companion job that flips waiting-queue entries past
// their deadline to expired, keeping them out of promotion and default
// listings. The core never sweeps from request handling.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/medisched/hospital-scheduling/internal/config"
	"github.com/medisched/hospital-scheduling/internal/db"
	"github.com/medisched/hospital-scheduling/internal/events"
	"github.com/medisched/hospital-scheduling/internal/notify"
	redisclient "github.com/medisched/hospital-scheduling/internal/redis"
	"github.com/medisched/hospital-scheduling/internal/scheduling"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "queue-sweeper").Logger()
	log.Info().Msg("queue-sweeper starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	log.Info().Str("env", cfg.Env).Str("cron", cfg.SweepSpec).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL)
	notifier := notify.NewLogNotifier(log)
	dispatcher := notify.NewDispatcher(notifier, cfg.NotifyQueueSize, log)
	defer dispatcher.Close()

	svc := scheduling.NewService(scheduling.ServiceDeps{
		Repo:       repo,
		Locker:     locker,
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Events:     events.NopPublisher{},
		Config:     cfg,
		Log:        log,
	})
	qsvc := scheduling.NewQueueService(repo, svc, log)

	// Run once at startup so a long-down sweeper catches up immediately.
	runOnce(rootCtx, qsvc, log)

	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepSpec, func() {
		runOnce(rootCtx, qsvc, log)
	}); err != nil {
		log.Fatal().Err(err).Str("cron", cfg.SweepSpec).Msg("invalid sweep cron spec")
	}
	c.Start()

	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received, stopping queue-sweeper")

	stopCtx := c.Stop()
	<-stopCtx.Done()
}

func runOnce(ctx context.Context, qsvc *scheduling.QueueService, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := qsvc.ExpireOverdue(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("sweep run error")
		return
	}
	log.Info().Int64("expired", n).Dur("took", time.Since(start)).Msg("sweep run complete")
}
