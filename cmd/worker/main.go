// Package main runs the background job workers and the periodic scheduler.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/motorsales/vsms/config"
	"github.com/motorsales/vsms/internal/auth"
	"github.com/motorsales/vsms/internal/insurance"
	"github.com/motorsales/vsms/internal/notifications"
	"github.com/motorsales/vsms/internal/payments"
	"github.com/motorsales/vsms/internal/permissions"
	"github.com/motorsales/vsms/internal/realtime"
	"github.com/motorsales/vsms/internal/scheduler"
	"github.com/motorsales/vsms/internal/settings"
	"github.com/motorsales/vsms/internal/tasks"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/internal/worker"
	"github.com/motorsales/vsms/pkg/database"
	"github.com/motorsales/vsms/pkg/logger"
	"github.com/motorsales/vsms/pkg/queue"
	"github.com/motorsales/vsms/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "worker")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	loc, err := time.LoadLocation(cfg.Scheduler.TimeZone)
	if err != nil {
		log.Fatal("time zone", zap.String("tz", cfg.Scheduler.TimeZone), zap.Error(err))
	}

	directory := tenancy.NewDirectory(
		tenancy.NewPGStore(pool),
		tenancy.NewRedisCache(rdb.Client, cfg.Tenancy.CacheTTL, log),
		tenancy.NewSchemaProvisioner(log, permissions.Seed),
		log,
	)
	scoper := tenancy.NewJobScoper(directory, tenancy.NewRouter(pool, log))

	jobQueue := queue.NewQueue(rdb.Client, log)
	jobQueue.SetMaxRetries(cfg.Worker.MaxRetries)

	notificationRepo := notifications.NewRepository()
	userRepo := auth.NewRepository()

	deliverer := tasks.NewDeliverer(
		scoper,
		notificationRepo,
		userRepo,
		realtime.NewRedisPubSub(rdb.Client, log),
		tasks.NewSMTPMailer(tasks.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUser,
			Password: cfg.Email.SMTPPass,
			From:     cfg.Email.FromAddress,
			FromName: cfg.Email.FromName,
		}),
		tasks.NewGatewaySMS(tasks.SMSConfig{
			GatewayURL: cfg.SMS.GatewayURL,
			APIKey:     cfg.SMS.APIKey,
			SenderID:   cfg.SMS.SenderID,
		}),
		log,
	)
	sweeps := tasks.NewSweeps(tasks.SweepDeps{
		Payments: payments.NewRepository(),
		Policies: insurance.NewRepository(),
		Settings: settings.NewRepository(),
		Staff:    userRepo,
		Notifier: notifications.NewService(notificationRepo, jobQueue, log),
		Cleanup:  notificationRepo,
		Pending:  notificationRepo,
		Jobs:     jobQueue,
	}, loc, log)

	registry := worker.NewRegistry()
	tasks.Register(registry, scoper, deliverer, sweeps)

	runner := worker.NewRunner(jobQueue, registry, worker.NewPGFailures(pool), worker.Options{
		Concurrency:  cfg.Worker.Concurrency,
		JobTimeout:   cfg.Worker.JobTimeout,
		RetryBackoff: cfg.Worker.RetryBackoff,
		PollInterval: cfg.Worker.PollInterval,
		HeartbeatTTL: cfg.Worker.HeartbeatTTL,
	}, log)

	beat, err := scheduler.New(rdb.Client, jobQueue, directory, scheduler.Options{
		File:     cfg.Scheduler.File,
		Location: loc,
		Tick:     cfg.Scheduler.Tick,
		JobTypes: registry.Types(),
	}, log)
	if err != nil {
		log.Fatal("scheduler", zap.Error(err))
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return beat.Run(gctx) })
	log.Info("scheduler started", zap.Int("entries", len(beat.Entries())), zap.String("tz", loc.String()))

	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", zap.Error(err))
	}
}
