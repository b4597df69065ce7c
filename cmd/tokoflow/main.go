package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tokoflow/tokoflow/internal/accounting"
	"github.com/tokoflow/tokoflow/internal/accounting/accounts"
	"github.com/tokoflow/tokoflow/internal/accounting/journals"
	"github.com/tokoflow/tokoflow/internal/allocation"
	"github.com/tokoflow/tokoflow/internal/analytics"
	"github.com/tokoflow/tokoflow/internal/app"
	"github.com/tokoflow/tokoflow/internal/chat"
	"github.com/tokoflow/tokoflow/internal/customers"
	"github.com/tokoflow/tokoflow/internal/delivery"
	"github.com/tokoflow/tokoflow/internal/inventory"
	"github.com/tokoflow/tokoflow/internal/invoicing"
	"github.com/tokoflow/tokoflow/internal/orders"
	"github.com/tokoflow/tokoflow/internal/otp"
	"github.com/tokoflow/tokoflow/internal/platform/cache"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	reportCache := cache.NewCache(redisClient, cfg.ReportCacheTTL)

	journalRepo := journals.NewRepository(pool)
	journalService := journals.NewService(journalRepo, auditLogger, reportCache)

	accountsService := accounts.NewService(accounts.NewRepository(pool))

	accountingRepo := accounting.NewRepository(pool)
	accountingService := accounting.NewService(accountingRepo, reportCache)

	analyticsRepo := analytics.NewRepository(pool)
	analyticsService := analytics.NewService(analyticsRepo, reportCache)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, nil)

	allocationRepo := allocation.NewRepository(pool)
	allocationService := allocation.NewService(allocationRepo, auditLogger, logger)
	inventoryService.SetBackorderFulfiller(allocationService)

	orderRepo := orders.NewRepository(pool)
	orderService := orders.NewService(orderRepo, allocationService, inventoryService, auditLogger, logger)

	invoiceRepo := invoicing.NewRepository(pool)
	invoiceService := invoicing.NewService(invoiceRepo, journalService, orderService, auditLogger, logger)

	customerRepo := customers.NewRepository(pool)
	customerService := customers.NewService(customerRepo, orderService, auditLogger, logger)

	deliveryRepo := delivery.NewRepository(pool)
	deliveryService := delivery.NewService(deliveryRepo, orderService, invoiceService, logger)

	chatRepo := chat.NewRepository(pool)
	chatService := chat.NewService(chatRepo, chat.LogNotifier{Logger: logger}, logger)

	otpService := otp.New(otp.NewRedisStore(redisClient), otp.LogSender{Logger: logger}, logger)
	if err := otpService.Init(ctx); err != nil {
		logger.Error("init otp", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := otpService.Shutdown(); err != nil {
			logger.Warn("otp shutdown", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountingHandler: accounting.NewHandler(logger, accountingService, accountsService, journalService, analyticsService),
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		AllocationHandler: allocation.NewHandler(logger, allocationService),
		OrdersHandler:     orders.NewHandler(logger, orderService, idempotencyStore),
		InvoicingHandler:  invoicing.NewHandler(logger, invoiceService),
		CustomersHandler:  customers.NewHandler(logger, customerService),
		DeliveryHandler:   delivery.NewHandler(logger, deliveryService),
		ChatHandler:       chat.NewHandler(logger, chatService),
		OTPHandler:        otp.NewHandler(logger, otpService),
		JobHandler:        jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := reportCache.ListenForInvalidation(gctx, func(version int64) {
			logger.Debug("report cache invalidated", slog.Int64("version", version))
		})
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("runtime", slog.Any("error", err))
		os.Exit(1)
	}
}
