// Package main provides the main entry point for the Hermes messaging pipeline
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/pegahdev/hermes/app/handlers"
	"github.com/pegahdev/hermes/app/middleware"
	"github.com/pegahdev/hermes/app/queue"
	"github.com/pegahdev/hermes/app/router"
	"github.com/pegahdev/hermes/app/services"
	businessflow "github.com/pegahdev/hermes/business_flow"
	"github.com/pegahdev/hermes/config"
	"github.com/pegahdev/hermes/models"
	"github.com/pegahdev/hermes/repository"
	"github.com/pegahdev/hermes/utils"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Hermes application...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.Logging)

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers and drain the queue pools
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// setupLogging routes the standard logger to stdout, a rotating file, or both
func setupLogging(cfg config.LoggingConfig) {
	if cfg.Output == "stdout" || cfg.Output == "" {
		return
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	switch cfg.Output {
	case "file":
		log.SetOutput(rotator)
	case "both":
		log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := models.EnsureEnumTypes(db); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Workspace{},
		&models.Contact{},
		&models.Message{},
		&models.OtnToken{},
		&models.RecurringSubscription{},
		&models.ComplianceAudit{},
		&models.DeliveryJob{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeCooldownStore picks the cooldown backend from the cache config
func initializeCooldownStore(cfg *config.ProductionConfig, rc *redis.Client) services.CooldownStore {
	if rc != nil {
		return services.NewRedisCooldownStore(rc, cfg.Compliance.CooldownKeyPrefix)
	}
	log.Println("Redis disabled, using in-memory cooldown store")
	return services.NewMemoryCooldownStore(cfg.Cache.CleanupInterval)
}

// initializeQueues registers the three delivery queues with their retention
// and retry policies and reloads any jobs persisted by a previous run.
func initializeQueues(ctx context.Context, manager *queue.Manager, cfg config.QueueConfig) error {
	base := queue.Policy{
		MaxAttempts:     cfg.MaxAttempts,
		BackoffBase:     cfg.BackoffBase,
		BackoffStrategy: queue.BackoffExponential,
		KeepCompleted:   cfg.KeepCompleted,
		CompletedMaxAge: cfg.CompletedMaxAge,
		KeepFailed:      cfg.KeepFailed,
		FailedMaxAge:    cfg.FailedMaxAge,
	}

	messagesPolicy := base
	messagesPolicy.StaggerDelay = utils.BroadcastStagger

	// Campaign sends get exactly one attempt; a retry at campaign scale
	// risks duplicate deliveries to the same recipient.
	campaignsPolicy := base
	campaignsPolicy.StaggerDelay = utils.CampaignStagger
	campaignsPolicy.MaxAttempts = 1

	for name, policy := range map[string]queue.Policy{
		utils.QueueMessages:  messagesPolicy,
		utils.QueueCampaigns: campaignsPolicy,
		utils.QueueScheduled: base,
	} {
		if err := manager.RegisterQueue(ctx, name, policy); err != nil {
			return fmt.Errorf("failed to register queue %s: %w", name, err)
		}
	}
	return nil
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, cfg.Cache.CleanupInterval)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	workspaceRepo := repository.NewWorkspaceRepository(db)
	contactRepo := repository.NewContactRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	otnRepo := repository.NewOtnTokenRepository(db)
	subscriptionRepo := repository.NewRecurringSubscriptionRepository(db)
	auditRepo := repository.NewComplianceAuditRepository(db)
	deliveryJobRepo := repository.NewDeliveryJobRepository(db)

	// Initialize services
	cooldowns := initializeCooldownStore(cfg, rc)
	messenger := services.NewMessengerService(&cfg.Messenger)

	// Initialize queue manager and restore persisted jobs
	manager := queue.NewManager(queue.NewGormStore(deliveryJobRepo), log.Default())

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	if err := initializeQueues(workerCtx, manager, cfg.Queue); err != nil {
		cancelWorkers()
		return nil, err
	}

	// Initialize flows
	complianceFlow := businessflow.NewComplianceFlow(
		contactRepo,
		messageRepo,
		otnRepo,
		subscriptionRepo,
		auditRepo,
		cooldowns,
		cfg.Compliance,
	)

	messagingFlow := businessflow.NewMessagingFlow(
		workspaceRepo,
		contactRepo,
		messageRepo,
		complianceFlow,
		manager,
		db,
	)

	deliveryFlow := businessflow.NewDeliveryFlow(
		workspaceRepo,
		contactRepo,
		messageRepo,
		otnRepo,
		complianceFlow,
		messenger,
	)

	reportFlow := businessflow.NewReportFlow(
		workspaceRepo,
		contactRepo,
		messageRepo,
		auditRepo,
	)

	queueAdminFlow := businessflow.NewQueueAdminFlow(manager)

	// Start the delivery worker pools, one per queue
	jobTimeout := cfg.Messenger.SendTimeout + 15*time.Second
	pools := []*queue.WorkerPool{
		queue.NewWorkerPool(manager, utils.QueueMessages, deliveryFlow.HandleDeliveryJob, cfg.Queue.MessageWorkers, jobTimeout, log.Default()),
		queue.NewWorkerPool(manager, utils.QueueCampaigns, deliveryFlow.HandleDeliveryJob, cfg.Queue.CampaignWorkers, jobTimeout, log.Default()),
		queue.NewWorkerPool(manager, utils.QueueScheduled, deliveryFlow.HandleDeliveryJob, cfg.Queue.ScheduledWorkers, jobTimeout, log.Default()),
	}
	for _, pool := range pools {
		pool.Start(workerCtx)
	}
	go manager.RunJanitor(workerCtx, cfg.Queue.JanitorInterval)

	stopFuncs = append(stopFuncs, func() {
		cancelWorkers()
		for _, pool := range pools {
			pool.Wait()
		}
	})

	// Initialize handlers
	messagingHandler := handlers.NewMessagingHandler(messagingFlow)
	complianceHandler := handlers.NewComplianceHandler(complianceFlow)
	reportHandler := handlers.NewReportHandler(reportFlow)
	queueHandler := handlers.NewQueueHandler(queueAdminFlow)

	// Initialize workspace middleware
	workspaceMiddleware := middleware.NewWorkspaceMiddleware(workspaceRepo)

	// Initialize router
	appRouter := router.NewFiberRouter(
		messagingHandler,
		complianceHandler,
		reportHandler,
		queueHandler,
		workspaceMiddleware,
	)

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
