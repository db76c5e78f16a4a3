package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/qaduni/status/internal/alerting"
	"github.com/qaduni/status/internal/config"
	"github.com/qaduni/status/internal/database"
	"github.com/qaduni/status/internal/handlers"
	"github.com/qaduni/status/internal/hub"
	"github.com/qaduni/status/internal/logger"
	"github.com/qaduni/status/internal/probe"
	"github.com/qaduni/status/internal/retention"
	"github.com/qaduni/status/internal/routes"
	"github.com/qaduni/status/internal/services"
	"github.com/qaduni/status/internal/store"
)

func main() {
	// ─── Config ──────────────────────────────────────────────────────────
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)

	slog.Info("Starting status monitor", "version", handlers.Version)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET must be set")
		os.Exit(1)
	}

	// ─── Database ────────────────────────────────────────────────────────
	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("Database connection failed", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	repo := store.New(db)

	// ─── Monitoring engine ──────────────────────────────────────────────
	events := hub.New()
	prober := probe.New(probe.WithUserAgent(cfg.UserAgent))
	scheduler := services.NewScheduler(
		repo,
		prober,
		alerting.New(),
		retention.New(repo, cfg.RetentionKeep),
		events,
		services.SchedulerConfig{
			CheckCadence:     cfg.CheckCadence,
			RetentionCadence: cfg.RetentionCadence,
			MaxConcurrency:   cfg.MaxConcurrency,
		},
	)
	if err := scheduler.Start(); err != nil {
		slog.Error("Scheduler failed to start", "error", err)
		os.Exit(1)
	}

	// ─── Handlers ───────────────────────────────────────────────────────
	systemHandler := handlers.NewSystemHandler(db, events)
	endpointHandler := handlers.NewEndpointHandler(db, services.NewReporter(repo), scheduler)
	alertHandler := handlers.NewAlertHandler(db)
	resultHandler := handlers.NewResultHandler(db)
	liveHandler := handlers.NewLiveHandler(events)

	// ─── Fiber App ──────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      "status v" + handlers.Version,
		ServerHeader: "status",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal server error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": message,
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	app.Use(recover.New(recover.Config{
		EnableStackTrace: false,
	}))

	// Request logger
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if c.Path() == "/api/health" {
			return err
		}
		slog.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		)
		return err
	})

	// ─── Routes ─────────────────────────────────────────────────────────
	routes.Setup(app, cfg.JWTSecret, systemHandler, endpointHandler, alertHandler, resultHandler, liveHandler)

	// ─── Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down status monitor...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := scheduler.Stop(ctx); err != nil {
			slog.Warn("Scheduler did not drain in time", "error", err)
		}
		events.Close()

		if err := app.Shutdown(); err != nil {
			slog.Error("Fiber shutdown error", "error", err)
		}

		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	// ─── Start ──────────────────────────────────────────────────────────
	listenAddr := ":" + cfg.Port
	slog.Info("Status monitor listening", "addr", listenAddr)

	if err := app.Listen(listenAddr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
