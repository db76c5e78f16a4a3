package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/qaduni/status/internal/middleware"
	"github.com/qaduni/status/internal/models"
)

var startTime = time.Now()
var Version = "1.0.0"

// ClientCounter reports connected live-feed clients.
type ClientCounter interface {
	Count() int
}

type SystemHandler struct {
	db      *gorm.DB
	clients ClientCounter
}

func NewSystemHandler(db *gorm.DB, clients ClientCounter) *SystemHandler {
	return &SystemHandler{db: db, clients: clients}
}

func (h *SystemHandler) Health(c *fiber.Ctx) error {
	dbStatus := "ok"
	statusCode := fiber.StatusOK

	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		statusCode = fiber.StatusServiceUnavailable
	} else if err := sqlDB.PingContext(c.UserContext()); err != nil {
		dbStatus = "unreachable: " + err.Error()
		statusCode = fiber.StatusServiceUnavailable
	}

	overall := "ok"
	if statusCode != fiber.StatusOK {
		overall = "degraded"
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":  overall,
		"service": "status",
		"version": Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"uptime":  time.Since(startTime).String(),
		"db":      dbStatus,
	})
}

// Info summarizes what the caller has under monitoring.
func (h *SystemHandler) Info(c *fiber.Ctx) error {
	owner := middleware.Owner(c)

	var active, paused, rules int64
	h.db.Model(&models.Endpoint{}).Where("owner_id = ? AND status = ?", owner, models.EndpointActive).Count(&active)
	h.db.Model(&models.Endpoint{}).Where("owner_id = ? AND status = ?", owner, models.EndpointPaused).Count(&paused)
	h.db.Model(&models.AlertRule{}).
		Joins("JOIN endpoints ON endpoints.id = alert_rules.endpoint_id").
		Where("endpoints.owner_id = ? AND alert_rules.active = ?", owner, true).
		Count(&rules)

	live := 0
	if h.clients != nil {
		live = h.clients.Count()
	}

	return c.JSON(fiber.Map{
		"version":          Version,
		"uptime":           time.Since(startTime).String(),
		"active_endpoints": active,
		"paused_endpoints": paused,
		"active_rules":     rules,
		"live_clients":     live,
	})
}
