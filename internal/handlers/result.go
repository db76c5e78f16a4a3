package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qaduni/status/internal/middleware"
	"github.com/qaduni/status/internal/models"
)

const (
	defaultResultLimit = 50
	maxResultLimit     = 500
)

type ResultHandler struct {
	db *gorm.DB
}

func NewResultHandler(db *gorm.DB) *ResultHandler {
	return &ResultHandler{db: db}
}

// ListResults returns the newest results across the caller's active
// endpoints, or of one endpoint with ?endpoint_id=.
func (h *ResultHandler) ListResults(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultResultLimit)
	if limit <= 0 || limit > maxResultLimit {
		limit = defaultResultLimit
	}

	query := h.db.Model(&models.ProbeResult{}).
		Select("probe_results.*").
		Joins("JOIN endpoints ON endpoints.id = probe_results.endpoint_id").
		Where("endpoints.owner_id = ? AND endpoints.status = ?", middleware.Owner(c), models.EndpointActive)

	if raw := c.Query("endpoint_id"); raw != "" {
		endpointID, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   true,
				"message": "Invalid endpoint ID",
			})
		}
		query = query.Where("probe_results.endpoint_id = ?", endpointID)
	}
	if outcome := models.Outcome(c.Query("status")); outcome != "" {
		query = query.Where("probe_results.outcome = ?", outcome)
	}

	var results []models.ProbeResult
	if err := query.Order("probe_results.checked_at DESC").Limit(limit).Find(&results).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list results",
		})
	}
	return c.JSON(fiber.Map{"results": results})
}
