package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"urbana/config"
	"urbana/cron"
	"urbana/database"
	deviceRepo "urbana/database/repository/device"
	ledgerRepo "urbana/database/repository/ledger"
	"urbana/handlers"
	"urbana/middleware"
	"urbana/models"
	"urbana/routes"
	"urbana/services/notification"
	"urbana/services/payment"
	"urbana/services/processor"
	"urbana/services/settlement"
	"urbana/services/withdrawal"
	"urbana/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	cfg := config.AppConfig

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	checks := map[string]utils.HealthCheck{}

	// repositories.
	ledger, devices := initStores(cfg, logger, checks)

	cache := utils.GetCacheClient()
	checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx).Err() }

	queue := asynq.NewClient(utils.QueueRedisOpt())
	defer queue.Close()

	// services.
	registry := processor.NewRegistryFromConfig(cfg, logger)

	var sender notification.Sender
	if cfg.FirebaseCredentialsFile != "" {
		fcm, err := utils.FirebaseMessaging(ctx, cfg.FirebaseCredentialsFile)
		if err != nil {
			logger.Sugar().Fatalf("main: failed to initialize firebase messaging: %v", err)
		}
		sender = fcm
	} else {
		logger.Warn("FIREBASE_CREDENTIALS_FILE not set, push notifications are only logged")
	}
	notificationService, err := notification.NewDefaultNotificationService(devices, sender, logger.Named("notification"))
	if err != nil {
		logger.Sugar().Fatalf("main: %v", err)
	}

	paymentService := payment.NewDefaultPaymentService(ledger, registry, queue, cache, logger.Named("payment"), payment.Options{
		DefaultCurrency: cfg.DefaultCurrency,
	})
	settlementService := settlement.NewDefaultSettlementService(ledger, logger.Named("settlement"), settlement.Options{
		PlatformUserID: cfg.PlatformUserID,
		CommissionBPS:  cfg.PlatformCommissionBPS,
	})
	withdrawalService := withdrawal.NewDefaultWithdrawalService(ledger, registry, queue, notificationService, logger.Named("withdrawal"), withdrawal.Options{
		Currency:          cfg.DefaultCurrency,
		TransferProcessor: models.Processor(strings.ToLower(cfg.TransferProcessor)),
		PollInterval:      time.Duration(cfg.TransferPollIntervalSec) * time.Second,
		MaxPolls:          cfg.TransferMaxPolls,
		StaleAfter:        time.Duration(cfg.TransferStaleAfterMin) * time.Minute,
	})
	paymentService.SetTransferReconciler(withdrawalService)

	worker := cron.InitTransferWorker(ctx, withdrawalService, notificationService)
	scheduler, err := cron.InitTransferScheduler(time.Duration(cfg.TransferSweepIntervalMin) * time.Minute)
	if err != nil {
		logger.Sugar().Fatalf("main: %v", err)
	}
	utils.StartHealthMonitor(ctx, checks, 30*time.Second)

	// Create the Gin router.
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Sugar().Fatalf("main: invalid TRUSTED_PROXIES: %v", err)
	}
	router.Use(gin.Recovery())
	router.Use(utils.ErrorHandler())
	router.Use(gin.Logger())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin))

	handlerBundle := handlers.NewHandlerBundle(
		handlers.NewPaymentHandler(paymentService),
		handlers.NewWalletHandler(withdrawalService),
		handlers.NewDeviceHandler(notificationService),
		handlers.NewAdminHandler(paymentService, settlementService, withdrawalService),
	)

	// Register routes with the assembled handler bundle.
	routes.RegisterRoutes(router, handlerBundle)

	// Start the HTTP server.
	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Fatalf("main: server forced to shutdown: %v", err)
	}
	scheduler.Shutdown()
	worker.Shutdown()

	logger.Sugar().Info("main: server stopped gracefully")
}

// initStores opens the ledger backend named by LEDGER_BACKEND. Push devices live in MongoDB when it
// is connected and in memory otherwise.
func initStores(cfg config.Config, logger *zap.Logger, checks map[string]utils.HealthCheck) (ledgerRepo.LedgerRepository, deviceRepo.DeviceRepository) {
	backend := strings.ToLower(cfg.LedgerBackend)
	logger.Info("Initializing ledger store", zap.String("backend", backend))

	switch backend {
	case "memory":
		logger.Warn("Using the in-memory ledger; balances are lost on restart")
		return ledgerRepo.NewMemoryLedgerRepo(), deviceRepo.NewMemoryDeviceRepo()

	case "postgres":
		db, err := database.ConnectPostgres(cfg.PostgresURL)
		if err != nil {
			logger.Sugar().Fatalf("main: %v", err)
		}
		if err := database.RunMigrations(db, cfg.MigrationsPath); err != nil {
			logger.Sugar().Fatalf("main: %v", err)
		}
		checks["postgres"] = func(ctx context.Context) error { return db.PingContext(ctx) }
		return ledgerRepo.NewPostgresLedgerRepo(db), deviceRepo.NewMemoryDeviceRepo()

	default:
		database.InitDB()
		checks["mongo"] = func(ctx context.Context) error { return database.MongoClient.Ping(ctx, nil) }
		ledger, err := ledgerRepo.NewMongoLedgerRepo(database.Database())
		if err != nil {
			logger.Sugar().Fatalf("main: failed to initialize ledger: %v", err)
		}
		devices, err := deviceRepo.NewMongoDeviceRepo(database.Database())
		if err != nil {
			logger.Sugar().Fatalf("main: failed to initialize device store: %v", err)
		}
		return ledger, devices
	}
}
