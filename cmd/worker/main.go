package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/tokoflow/tokoflow/internal/allocation"
	"github.com/tokoflow/tokoflow/internal/app"
	"github.com/tokoflow/tokoflow/internal/chat"
	"github.com/tokoflow/tokoflow/internal/inventory"
	"github.com/tokoflow/tokoflow/internal/orders"
	"github.com/tokoflow/tokoflow/internal/platform/db"
	"github.com/tokoflow/tokoflow/internal/shared"
	"github.com/tokoflow/tokoflow/jobs"
)

func main() {
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, nil)

	allocationRepo := allocation.NewRepository(pool)
	allocationService := allocation.NewService(allocationRepo, auditLogger, logger)
	inventoryService.SetBackorderFulfiller(allocationService)

	orderRepo := orders.NewRepository(pool)
	orderService := orders.NewService(orderRepo, allocationService, inventoryService, auditLogger, logger)

	chatRepo := chat.NewRepository(pool)
	chatService := chat.NewService(chatRepo, chat.LogNotifier{Logger: logger}, logger)

	reaperJob := jobs.NewOrderReaperJob(orderService, logger)
	chatSweepJob := jobs.NewChatSweepJob(chatService, logger)
	consistencyJob := jobs.NewStockConsistencyJob(inventoryService, logger)
	escalationJob := jobs.NewIssueEscalationJob(orderService, logger)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger)

	reaperTask, err := jobs.NewOrderReaperTask(200)
	if err != nil {
		logger.Error("build reaper task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(72)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOrderReaper, Handler: reaperJob.Handle},
			{Type: jobs.TaskChatReactivate, Handler: chatSweepJob.Handle},
			{Type: jobs.TaskStockConsistency, Handler: consistencyJob.Handle},
			{Type: jobs.TaskIssueEscalation, Handler: escalationJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: reaperTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "*/10 * * * *", Task: jobs.NewChatReactivateTask()},
			{Spec: "30 1 * * *", Task: jobs.NewStockConsistencyTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 */4 * * *", Task: jobs.NewIssueEscalationTask()},
			{Spec: "15 2 * * *", Task: cleanupTask},
		},
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
