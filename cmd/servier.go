package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/config"
	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/logx"
	"github.com/Abraxas-365/tenantauth/pkg/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

func main() {
	// 1. Initialize Logger
	logx.SetDefaultLogger(logx.NewLogger(logx.LoadFromEnv()))

	logx.Info("🚀 Starting TenantAuth API Server...")

	// 2. Load Configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logx.Fatalf("Invalid configuration: %v", err)
	}

	// 3. Initialize Dependency Container
	container := NewContainer(cfg)
	defer container.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	container.StartBackgroundServices(ctx)

	// 4. Create Fiber App with Config
	app := fiber.New(fiber.Config{
		AppName:               "TenantAuth API",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler(cfg.Server.Debug),
		BodyLimit:             1 * 1024 * 1024,
		IdleTimeout:           120 * time.Second,
		EnablePrintRoutes:     false,
	})

	// 5. Global Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Server.Debug,
	}))

	app.Use(requestid.New(requestid.Config{
		Header:    fiber.HeaderXRequestID,
		Generator: uuid.NewString,
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.Server.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Public-Key, X-Secret-Key, X-Request-ID",
		AllowMethods:  "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${respHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	// 6. Health Check & Info Endpoints
	app.Get("/health", healthCheckHandler(container))
	app.Get("/metrics", metrics.Handler(container.Registry))
	app.Get("/", infoHandler(cfg))

	// 7. Register Routes

	// ========================================================================
	// Setup Wizard Routes
	// ========================================================================
	// Routes: /api/setup/status, /api/setup/{database,email}/test, /api/setup/complete
	container.SetupHandlers.RegisterRoutes(app)
	logx.Info("✓ Setup routes registered")

	// ========================================================================
	// IAM Routes
	// ========================================================================
	// Admin: /api/admin/auth/*
	// Applications: /api/admin/applications/*
	// End users: /api/v1/auth/*, /api/v1/server/*
	container.IAM.RegisterRoutes(app)
	logx.Info("✓ IAM routes registered")

	// 8. 404 Handler
	app.Use(notFoundHandler)

	// 9. Print Route Summary
	printRouteSummary()

	// 10. Start Server with Graceful Shutdown
	startServer(app, cfg.Server.Port, cancel)
}

// ============================================================================
// Handler Functions
// ============================================================================

// healthCheckHandler reports dependencies and whether setup has completed.
// Pending setup is healthy: the process is up and serving the wizard.
func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":         "healthy",
			"service":        "tenantauth-api",
			"version":        container.Config.Server.Version,
			"setup_complete": container.Gate.IsSetupComplete(c.UserContext()),
		}

		for name, state := range container.Health(c.UserContext()) {
			health[name] = state
			if state != "healthy" {
				health["status"] = "degraded"
			}
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}

		return c.Status(status).JSON(health)
	}
}

// infoHandler returns basic API information
func infoHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service":     "TenantAuth API",
			"version":     cfg.Server.Version,
			"description": "Multi-tenant authentication service",
			"endpoints": fiber.Map{
				"setup":   "/api/setup/status",
				"health":  "/health",
				"metrics": "/metrics",
			},
			"authentication": fiber.Map{
				"admin":    "Authorization: Bearer <admin access token>",
				"tenant":   "X-Public-Key: <pk_live_...>",
				"server":   "X-Public-Key + X-Secret-Key",
				"end_user": "X-Public-Key + Authorization: Bearer <end user access token>",
			},
		})
	}
}

// notFoundHandler handles 404 errors
func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"code":       "NOT_FOUND",
		"message":    "The requested endpoint does not exist",
		"type":       string(errx.TypeNotFound),
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
	})
}

// ============================================================================
// Error Handler
// ============================================================================

// globalErrorHandler logs the failure, then writes the errx response
func globalErrorHandler(debug bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		entry := logx.WithFields(logx.Fields{
			"path":       c.Path(),
			"method":     c.Method(),
			"ip":         c.IP(),
			"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
		}).WithError(err)

		switch errx.TypeOf(err) {
		case errx.TypeInternal, errx.TypeExternal, errx.TypeUnavailable:
			entry.Error("Request failed")
		default:
			if debug {
				entry.Debug("Request rejected")
			}
		}

		return errx.Respond(c, err)
	}
}

// ============================================================================
// Utility Functions
// ============================================================================

// printRouteSummary prints a summary of registered routes
func printRouteSummary() {
	logx.Info("📋 Route Summary:")
	logx.Info("   ├─ Setup: /api/setup/*")
	logx.Info("   ├─ Admin: /api/admin/auth/*, /api/admin/applications/*")
	logx.Info("   ├─ End users: /api/v1/auth/*, /api/v1/server/*")
	logx.Info("   ├─ Health: /health")
	logx.Info("   └─ Metrics: /metrics")
}

// startServer starts the server with graceful shutdown
func startServer(app *fiber.App, port string, stopBackground context.CancelFunc) {
	// Run server in a goroutine
	go func() {
		logx.Infof("🚀 Server listening on port %s", port)
		logx.Infof("🧙 Setup status: http://localhost:%s/api/setup/status", port)
		logx.Infof("💚 Health Check: http://localhost:%s/health", port)

		if err := app.Listen(":" + port); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	gracefulShutdown(app, stopBackground)
}

// gracefulShutdown handles graceful server shutdown
func gracefulShutdown(app *fiber.App, stopBackground context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	sig := <-sigChan
	logx.Infof("🛑 Received signal: %v", sig)
	logx.Info("Shutting down gracefully...")

	stopBackground()
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}

	logx.Info("✅ Server exited successfully")
}
