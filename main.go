// Package main provides the main entry point for the wanotifier service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/peymanslh/wanotifier/app/handlers"
	"github.com/peymanslh/wanotifier/app/middleware"
	"github.com/peymanslh/wanotifier/app/router"
	"github.com/peymanslh/wanotifier/app/scheduler"
	"github.com/peymanslh/wanotifier/app/services"
	businessflow "github.com/peymanslh/wanotifier/business_flow"
	"github.com/peymanslh/wanotifier/config"
	"github.com/peymanslh/wanotifier/models"
	"github.com/peymanslh/wanotifier/repository"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	sessions  services.SessionManager
	stopFuncs []func()
}

func main() {
	log.Println("Starting wanotifier...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	for _, fn := range app.stopFuncs {
		fn()
	}

	// Live sessions close without touching persisted state so the next boot
	// can reconcile and reconnect.
	app.sessions.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Merchant{},
		&models.AutomationRule{},
		&models.MessageTemplate{},
		&models.DeliveryRecord{},
		&models.AutomationStat{},
		&models.ConnectionSession{},
		&models.Campaign{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database connection established")
	return db, nil
}

// initializeCache initializes the redis connection
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.Addr(), cfg.DB)
	return rc, nil
}

// initializeProvider selects the channel provider implementation
func initializeProvider(cfg config.WhatsAppConfig) services.WhatsAppProvider {
	if cfg.UseMockProvider {
		log.Println("Using mock WhatsApp provider")
		return services.NewMockWhatsAppProvider()
	}
	return services.NewBridgeProvider(cfg.BridgeURL, cfg.BridgeAPIKey, cfg.BridgeTimeout)
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// Repositories
	merchantRepo := repository.NewMerchantRepository(db)
	ruleRepo := repository.NewAutomationRuleRepository(db)
	templateRepo := repository.NewMessageTemplateRepository(db)
	deliveryRepo := repository.NewDeliveryRecordRepository(db)
	statRepo := repository.NewAutomationStatRepository(db)
	sessionRepo := repository.NewConnectionSessionRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)

	// Services
	tokenService, err := services.NewTokenService(cfg.JWT.SecretKey, cfg.JWT.TokenTTL, cfg.JWT.Issuer)
	if err != nil {
		return nil, err
	}
	statusFeed := services.NewRedisStatusFeed(rc)
	provider := initializeProvider(cfg.WhatsApp)
	sessionManager := services.NewSessionManager(provider, sessionRepo, merchantRepo, statusFeed, log.Default())
	shopifyClient := services.NewShopifyClient(cfg.Shopify.APITimeout)

	// Business flows
	quotaFlow := businessflow.NewQuotaFlow(merchantRepo)
	eventFlow := businessflow.NewEventFlow(
		merchantRepo,
		ruleRepo,
		templateRepo,
		deliveryRepo,
		statRepo,
		sessionManager,
		shopifyClient,
		quotaFlow,
		log.Default(),
	)
	campaignFlow := businessflow.NewCampaignFlow(campaignRepo, merchantRepo, sessionManager, log.Default())

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(eventFlow, log.Default())
	sessionHandler := handlers.NewSessionHandler(sessionManager, statusFeed)
	campaignHandler := handlers.NewCampaignHandler(campaignFlow)
	healthHandler := handlers.NewHealthHandler(db, rc)
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	appRouter := router.NewFiberRouter(
		webhookHandler,
		sessionHandler,
		campaignHandler,
		healthHandler,
		authMiddleware,
		cfg.Shopify.WebhookSecret,
		cfg.Server.AllowedOrigins,
		cfg.Metrics.Enabled,
	)

	// Resume sessions that were connected before the last restart
	reconcileCtx, reconcileCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer reconcileCancel()
	if err := sessionManager.ReconcileOnStart(reconcileCtx); err != nil {
		log.Printf("Session reconciliation failed: %v", err)
	}

	// Background workers
	campaignScheduler := scheduler.NewCampaignScheduler(campaignRepo, campaignFlow, cfg.Scheduler.CampaignPollInterval)
	stopFuncs = append(stopFuncs, campaignScheduler.Start(context.Background()))

	pruner := scheduler.NewRetentionPruner(deliveryRepo, cfg.Scheduler.RetentionHorizon, cfg.Scheduler.RetentionInterval, log.Default())
	stopFuncs = append(stopFuncs, pruner.Start(context.Background()))

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		sessions:  sessionManager,
		stopFuncs: stopFuncs,
	}, nil
}
