package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qaduni/status/internal/middleware"
	"github.com/qaduni/status/internal/models"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 500
)

type AlertHandler struct {
	db *gorm.DB
}

func NewAlertHandler(db *gorm.DB) *AlertHandler {
	return &AlertHandler{db: db}
}

// ownedRules scopes alert rule queries to the caller's active endpoints.
func (h *AlertHandler) ownedRules(owner uuid.UUID) *gorm.DB {
	return h.db.Model(&models.AlertRule{}).
		Select("alert_rules.*").
		Joins("JOIN endpoints ON endpoints.id = alert_rules.endpoint_id").
		Where("endpoints.owner_id = ? AND endpoints.status = ?", owner, models.EndpointActive)
}

func (h *AlertHandler) findRule(c *fiber.Ctx) (*models.AlertRule, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid rule ID",
		})
	}

	var rule models.AlertRule
	if err := h.ownedRules(middleware.Owner(c)).Where("alert_rules.id = ?", id).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   true,
				"message": "Alert rule not found",
			})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to load alert rule",
		})
	}
	return &rule, nil
}

// ListAlertRules returns the caller's alert rules, optionally for one
// endpoint (?endpoint_id=).
func (h *AlertHandler) ListAlertRules(c *fiber.Ctx) error {
	query := h.ownedRules(middleware.Owner(c))
	if raw := c.Query("endpoint_id"); raw != "" {
		endpointID, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   true,
				"message": "Invalid endpoint ID",
			})
		}
		query = query.Where("alert_rules.endpoint_id = ?", endpointID)
	}

	var rules []models.AlertRule
	if err := query.Order("alert_rules.created_at DESC").Find(&rules).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list alert rules",
		})
	}
	return c.JSON(fiber.Map{"rules": rules})
}

// CreateAlertRule attaches a down, slow or up rule to an endpoint.
func (h *AlertHandler) CreateAlertRule(c *fiber.Ctx) error {
	var req struct {
		EndpointID uuid.UUID        `json:"endpoint_id"`
		Kind       models.AlertKind `json:"alert_type"`
		Threshold  int              `json:"threshold"`
		Active     *bool            `json:"is_active"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	if !req.Kind.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "alert_type must be one of: down, slow, up",
		})
	}
	if req.Threshold < 0 || (req.Kind == models.AlertSlow && req.Threshold == 0) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "slow alerts need a positive threshold in milliseconds",
		})
	}

	var endpoint models.Endpoint
	err := h.db.Where("id = ? AND owner_id = ? AND status = ?", req.EndpointID, middleware.Owner(c), models.EndpointActive).
		First(&endpoint).Error
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "You can only create alerts for your own endpoints",
		})
	}

	var existing int64
	err = h.db.Model(&models.AlertRule{}).Where("endpoint_id = ? AND kind = ?", endpoint.ID, req.Kind).Count(&existing).Error
	if err != nil {
		slog.Error("Failed to check existing alert rules", "endpoint", endpoint.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to check existing alert rules",
		})
	}
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   true,
			"message": "This endpoint already has a " + string(req.Kind) + " alert",
		})
	}

	rule := models.AlertRule{
		EndpointID: endpoint.ID,
		Kind:       req.Kind,
		Threshold:  req.Threshold,
		Active:     req.Active == nil || *req.Active,
	}
	if err := h.db.Create(&rule).Error; err != nil {
		slog.Error("Failed to create alert rule", "endpoint", endpoint.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to create alert rule",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(rule)
}

// UpdateAlertRule changes the threshold or toggles the rule.
func (h *AlertHandler) UpdateAlertRule(c *fiber.Ctx) error {
	rule, err := h.findRule(c)
	if rule == nil {
		return err
	}

	var req struct {
		Threshold *int  `json:"threshold"`
		Active    *bool `json:"is_active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	if req.Threshold != nil {
		if *req.Threshold < 0 || (rule.Kind == models.AlertSlow && *req.Threshold == 0) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   true,
				"message": "slow alerts need a positive threshold in milliseconds",
			})
		}
		rule.Threshold = *req.Threshold
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}

	err = h.db.Model(rule).Updates(map[string]interface{}{
		"threshold": rule.Threshold,
		"active":    rule.Active,
	}).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to update alert rule",
		})
	}
	return c.JSON(rule)
}

// DeleteAlertRule deactivates the rule; its notifications stay.
func (h *AlertHandler) DeleteAlertRule(c *fiber.Ctx) error {
	rule, err := h.findRule(c)
	if rule == nil {
		return err
	}

	if err := h.db.Model(rule).Update("active", false).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to delete alert rule",
		})
	}

	return c.JSON(fiber.Map{"message": "Alert rule deactivated"})
}

// ListNotifications returns the caller's recorded notifications, newest
// first.
func (h *AlertHandler) ListNotifications(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultNotificationLimit)
	if limit <= 0 || limit > maxNotificationLimit {
		limit = defaultNotificationLimit
	}

	var notifications []models.AlertNotification
	err := h.db.Model(&models.AlertNotification{}).
		Select("alert_notifications.*").
		Joins("JOIN alert_rules ON alert_rules.id = alert_notifications.rule_id").
		Joins("JOIN endpoints ON endpoints.id = alert_rules.endpoint_id").
		Where("endpoints.owner_id = ?", middleware.Owner(c)).
		Order("alert_notifications.created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list notifications",
		})
	}

	return c.JSON(fiber.Map{"notifications": notifications})
}
