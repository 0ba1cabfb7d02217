package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medisched/hospital-scheduling/internal/api"
	"github.com/medisched/hospital-scheduling/internal/availability"
	"github.com/medisched/hospital-scheduling/internal/config"
	"github.com/medisched/hospital-scheduling/internal/db"
	"github.com/medisched/hospital-scheduling/internal/events"
	"github.com/medisched/hospital-scheduling/internal/notify"
	redisclient "github.com/medisched/hospital-scheduling/internal/redis"
	"github.com/medisched/hospital-scheduling/internal/scheduling"
)

const version = "0.3.0"

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "api-server").Logger()
	log.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	if cfg.Env == "dev" {
		log = log.Level(zerolog.DebugLevel)
	}
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL)
	notifier := notify.NewLogNotifier(log.With().Str("component", "notifier").Logger())
	dispatcher := notify.NewDispatcher(notifier, cfg.NotifyQueueSize, log)
	defer dispatcher.Close()
	publisher := events.NewRedisPublisher(rdb, cfg.EventChannel, log)

	svc := scheduling.NewService(scheduling.ServiceDeps{
		Repo:         repo,
		Locker:       locker,
		Dispatcher:   dispatcher,
		Notifier:     notifier,
		Events:       publisher,
		Availability: availability.NewPgProvider(pgPool),
		Config:       cfg,
		Log:          log,
	})
	qsvc := scheduling.NewQueueService(repo, svc, log)

	router := api.NewRouter(api.RouterConfig{
		Appointments: svc,
		Queue:        qsvc,
		PgPool:       pgPool,
		Redis:        rdb,
		Env:          cfg.Env,
		Version:      version,
		Log:          log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
