package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/qaduni/status/internal/handlers"
	"github.com/qaduni/status/internal/middleware"
)

func Setup(
	app *fiber.App,
	jwtSecret string,
	systemHandler *handlers.SystemHandler,
	endpointHandler *handlers.EndpointHandler,
	alertHandler *handlers.AlertHandler,
	resultHandler *handlers.ResultHandler,
	liveHandler *handlers.LiveHandler,
) {
	// ─── Public ──────────────────────────────────────────────────────────
	app.Get("/api/health", systemHandler.Health)

	// ─── Protected routes ────────────────────────────────────────────────
	api := app.Group("/api", middleware.JWTProtected(jwtSecret))

	api.Get("/system/info", systemHandler.Info)

	// Dashboard
	api.Get("/dashboard/stats", endpointHandler.DashboardStats)

	// Endpoints
	api.Get("/endpoints", endpointHandler.ListEndpoints)
	api.Post("/endpoints", endpointHandler.CreateEndpoint)
	api.Post("/endpoints/check-all", endpointHandler.CheckAllEndpoints)
	api.Get("/endpoints/:id", endpointHandler.GetEndpoint)
	api.Put("/endpoints/:id", endpointHandler.UpdateEndpoint)
	api.Delete("/endpoints/:id", endpointHandler.DeleteEndpoint)
	api.Post("/endpoints/:id/pause", endpointHandler.PauseEndpoint)
	api.Post("/endpoints/:id/resume", endpointHandler.ResumeEndpoint)
	api.Post("/endpoints/:id/check", endpointHandler.CheckEndpoint)
	api.Get("/endpoints/:id/history", endpointHandler.GetHistory)

	// Results
	api.Get("/results", resultHandler.ListResults)

	// Alerts
	api.Get("/alerts", alertHandler.ListAlertRules)
	api.Post("/alerts", alertHandler.CreateAlertRule)
	api.Put("/alerts/:id", alertHandler.UpdateAlertRule)
	api.Delete("/alerts/:id", alertHandler.DeleteAlertRule)
	api.Get("/notifications", alertHandler.ListNotifications)

	// Live feed (WebSocket)
	api.Use("/live", liveHandler.UpgradeCheck())
	api.Get("/live", liveHandler.Stream())
}
