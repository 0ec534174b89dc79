// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peymanslh/wanotifier/app/dto"
	"github.com/peymanslh/wanotifier/app/handlers"
	"github.com/peymanslh/wanotifier/app/middleware"
	"github.com/peymanslh/wanotifier/utils"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app             *fiber.App
	webhookHandler  handlers.WebhookHandlerInterface
	sessionHandler  handlers.SessionHandlerInterface
	campaignHandler handlers.CampaignHandlerInterface
	healthHandler   *handlers.HealthHandler
	authMiddleware  *middleware.AuthMiddleware
	webhookSecret   string
	allowedOrigins  []string
	metricsEnabled  bool
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	webhookHandler handlers.WebhookHandlerInterface,
	sessionHandler handlers.SessionHandlerInterface,
	campaignHandler handlers.CampaignHandlerInterface,
	healthHandler *handlers.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
	webhookSecret string,
	allowedOrigins []string,
	metricsEnabled bool,
) Router {
	app := fiber.New(fiber.Config{
		AppName:      "WA Notifier API",
		ServerHeader: "wanotifier",
		ErrorHandler: errorHandler,
		BodyLimit:    4 * 1024 * 1024, // 4MB
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:             app,
		webhookHandler:  webhookHandler,
		sessionHandler:  sessionHandler,
		campaignHandler: campaignHandler,
		healthHandler:   healthHandler,
		authMiddleware:  authMiddleware,
		webhookSecret:   webhookSecret,
		allowedOrigins:  allowedOrigins,
		metricsEnabled:  metricsEnabled,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	// Signed webhook ingestion: HMAC check runs before any parsing
	webhooks := r.app.Group("/webhooks", middleware.ShopifyHMAC(r.webhookSecret))
	webhooks.Post("/shopify", r.webhookHandler.HandleShopifyWebhook)

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthHandler.Health)

	if r.metricsEnabled {
		r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	// Merchant endpoints require a valid bearer token
	session := api.Group("/session", r.authMiddleware.Authenticate())
	session.Post("/connect", r.sessionHandler.Connect)
	session.Post("/disconnect", r.sessionHandler.Disconnect)
	session.Get("/status", r.sessionHandler.Status)
	session.Post("/pairing-code", r.sessionHandler.RequestPairingCode)
	session.Get("/events", r.sessionHandler.Events)

	campaigns := api.Group("/campaigns", r.authMiddleware.Authenticate())
	campaigns.Post("/", r.campaignHandler.CreateCampaign)
	campaigns.Get("/", r.campaignHandler.ListCampaigns)
	campaigns.Get("/:uuid", r.campaignHandler.GetCampaign)

	log.Println("Routes setup completed")
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	// Security headers middleware
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000, // 1 year
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins: r.allowedOrigins,
		AllowMethods: []string{
			"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Requested-With",
			"X-Request-ID",
			"Cache-Control",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
		},
		AllowCredentials: true,
	}))

	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Structured request logging
	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			// Skip logging for health checks
			return c.Path() == "/api/v1/health"
		},
	}))

	r.app.Use(middleware.Metrics())

	// Recovery middleware with custom error handling
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	return r.app.Listen(address)
}

// GetApp returns the underlying Fiber app
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	log.Printf("Error %d: %v", code, err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: "Request failed",
		Error: dto.ErrorDetail{
			Code:    "INTERNAL_ERROR",
			Details: err.Error(),
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
