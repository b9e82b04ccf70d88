package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/batasku/periodlock/internal/app"
	"github.com/batasku/periodlock/internal/platform/db"
	"github.com/batasku/periodlock/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	reopenJob := jobs.NewReopenNoticeJob(logger)
	reminderJob := jobs.NewReminderScanJob(pool, logger)

	var cron []jobs.CronRegistration
	if cfg.ReminderCron != "" {
		reminderTask, err := jobs.NewReminderScanTask(jobs.ReminderScanPayload{
			AfterDays: cfg.ReminderAfter,
			Recipient: cfg.NotifyRecipient,
		})
		if err != nil {
			logger.Error("build reminder task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.ReminderCron,
			Task:    reminderTask,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReopenNotice, Handler: reopenJob.Handle},
			{Type: jobs.TaskReminderScan, Handler: reminderJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
