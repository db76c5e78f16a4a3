package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qaduni/status/internal/middleware"
	"github.com/qaduni/status/internal/models"
	"github.com/qaduni/status/internal/services"
	"github.com/qaduni/status/internal/store"
)

const (
	maxNameLength  = 255
	maxHistoryRows = 1000
)

// Dispatcher starts probes on demand.
type Dispatcher interface {
	Trigger(id uuid.UUID) bool
	TriggerAll(ctx context.Context, owner uuid.UUID) (int, error)
}

type EndpointHandler struct {
	db         *gorm.DB
	reports    *services.Reporter
	dispatcher Dispatcher
}

func NewEndpointHandler(db *gorm.DB, reports *services.Reporter, dispatcher Dispatcher) *EndpointHandler {
	return &EndpointHandler{db: db, reports: reports, dispatcher: dispatcher}
}

type endpointRequest struct {
	Name          *string `json:"name"`
	URL           *string `json:"url"`
	CheckInterval *int    `json:"check_interval"`
	Timeout       *int    `json:"timeout"`
}

// endpointView is an endpoint with its current health attached.
type endpointView struct {
	models.Endpoint
	*services.Summary
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("URL is not valid")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("URL must start with http:// or https://")
	}
	if u.Host == "" {
		return errors.New("URL must include a host")
	}
	return nil
}

// apply validates req and copies its fields onto e. On create every
// required field must be present.
func (req endpointRequest) apply(e *models.Endpoint, create bool) error {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > maxNameLength {
			return fmt.Errorf("name must be 1 to %d characters", maxNameLength)
		}
		e.Name = name
	} else if create {
		return errors.New("Name and URL are required")
	}

	if req.URL != nil {
		raw := strings.TrimSpace(*req.URL)
		if err := validateURL(raw); err != nil {
			return err
		}
		e.URL = raw
	} else if create {
		return errors.New("Name and URL are required")
	}

	if req.CheckInterval != nil {
		if *req.CheckInterval <= 0 {
			return errors.New("check_interval must be a positive number of seconds")
		}
		e.CheckIntervalSeconds = *req.CheckInterval
	} else if create {
		e.CheckIntervalSeconds = models.DefaultCheckIntervalSeconds
	}

	if req.Timeout != nil {
		if *req.Timeout <= 0 {
			return errors.New("timeout must be a positive number of seconds")
		}
		e.TimeoutSeconds = *req.Timeout
	} else if create {
		e.TimeoutSeconds = models.DefaultTimeoutSeconds
	}
	return nil
}

func (h *EndpointHandler) urlTaken(owner uuid.UUID, rawURL string, except uuid.UUID) (bool, error) {
	var count int64
	err := h.db.Model(&models.Endpoint{}).
		Where("owner_id = ? AND url = ? AND status <> ? AND id <> ?", owner, rawURL, models.EndpointDeleted, except).
		Count(&count).Error
	return count > 0, err
}

// owned loads a non-deleted endpoint of the caller.
func (h *EndpointHandler) owned(c *fiber.Ctx) (*models.Endpoint, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid endpoint ID",
		})
	}

	var e models.Endpoint
	err = h.db.Where("id = ? AND owner_id = ? AND status <> ?", id, middleware.Owner(c), models.EndpointDeleted).
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   true,
				"message": "Endpoint not found",
			})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to load endpoint",
		})
	}
	return &e, nil
}

func (h *EndpointHandler) view(c *fiber.Ctx, e models.Endpoint) (endpointView, error) {
	summary, err := h.reports.Summarize(c.UserContext(), e)
	if err != nil {
		return endpointView{}, err
	}
	return endpointView{Endpoint: e, Summary: summary}, nil
}

// ListEndpoints returns the caller's endpoints, newest first. Deleted
// endpoints are hidden; ?status= narrows to active or paused.
func (h *EndpointHandler) ListEndpoints(c *fiber.Ctx) error {
	q := h.db.Where("owner_id = ? AND status <> ?", middleware.Owner(c), models.EndpointDeleted)
	switch status := models.EndpointStatus(c.Query("status")); status {
	case "":
	case models.EndpointActive, models.EndpointPaused:
		q = q.Where("status = ?", status)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "status must be active or paused",
		})
	}

	var endpoints []models.Endpoint
	if err := q.Order("created_at DESC").Find(&endpoints).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list endpoints",
		})
	}

	views := make([]endpointView, 0, len(endpoints))
	for _, e := range endpoints {
		v, err := h.view(c, e)
		if err != nil {
			slog.Error("Failed to summarize endpoint", "endpoint", e.ID, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   true,
				"message": "Failed to list endpoints",
			})
		}
		views = append(views, v)
	}
	return c.JSON(fiber.Map{"endpoints": views})
}

// CreateEndpoint registers a new URL to monitor.
func (h *EndpointHandler) CreateEndpoint(c *fiber.Ctx) error {
	var req endpointRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	owner := middleware.Owner(c)
	e := models.Endpoint{OwnerID: owner, Status: models.EndpointActive}
	if err := req.apply(&e, true); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}

	taken, err := h.urlTaken(owner, e.URL, uuid.Nil)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to create endpoint",
		})
	}
	if taken {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   true,
			"message": "This URL is already being monitored",
		})
	}

	if err := h.db.Create(&e).Error; err != nil {
		slog.Error("Failed to create endpoint", "url", e.URL, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to create endpoint",
		})
	}

	slog.Info("Endpoint created", "endpoint", e.ID, "url", e.URL, "owner", owner)
	return c.Status(fiber.StatusCreated).JSON(endpointView{Endpoint: e, Summary: &services.Summary{Recent: []models.ProbeResult{}}})
}

// GetEndpoint returns one endpoint with its latest result, uptime and
// recent checks.
func (h *EndpointHandler) GetEndpoint(c *fiber.Ctx) error {
	e, err := h.owned(c)
	if e == nil {
		return err
	}

	v, err := h.view(c, *e)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to load endpoint health",
		})
	}
	return c.JSON(v)
}

// UpdateEndpoint changes name, url, check interval or timeout.
func (h *EndpointHandler) UpdateEndpoint(c *fiber.Ctx) error {
	e, err := h.owned(c)
	if e == nil {
		return err
	}

	var req endpointRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}
	if err := req.apply(e, false); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": err.Error(),
		})
	}

	if req.URL != nil {
		taken, err := h.urlTaken(e.OwnerID, e.URL, e.ID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   true,
				"message": "Failed to update endpoint",
			})
		}
		if taken {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":   true,
				"message": "This URL is already being monitored",
			})
		}
	}

	err = h.db.Model(e).Updates(map[string]interface{}{
		"name":                   e.Name,
		"url":                    e.URL,
		"check_interval_seconds": e.CheckIntervalSeconds,
		"timeout_seconds":        e.TimeoutSeconds,
	}).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to update endpoint",
		})
	}

	v, err := h.view(c, *e)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to load endpoint health",
		})
	}
	return c.JSON(v)
}

// DeleteEndpoint marks the endpoint deleted. Its history is kept.
func (h *EndpointHandler) DeleteEndpoint(c *fiber.Ctx) error {
	e, err := h.owned(c)
	if e == nil {
		return err
	}

	if err := h.db.Model(e).Update("status", models.EndpointDeleted).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to delete endpoint",
		})
	}

	slog.Info("Endpoint deleted", "endpoint", e.ID)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *EndpointHandler) PauseEndpoint(c *fiber.Ctx) error {
	return h.transition(c, models.EndpointActive, models.EndpointPaused)
}

func (h *EndpointHandler) ResumeEndpoint(c *fiber.Ctx) error {
	return h.transition(c, models.EndpointPaused, models.EndpointActive)
}

func (h *EndpointHandler) transition(c *fiber.Ctx, from, to models.EndpointStatus) error {
	e, err := h.owned(c)
	if e == nil {
		return err
	}
	if e.Status != from {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   true,
			"message": fmt.Sprintf("Endpoint is %s", e.Status),
		})
	}

	if err := h.db.Model(e).Update("status", to).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to update endpoint",
		})
	}
	e.Status = to
	return c.JSON(e)
}

// CheckEndpoint queues an immediate probe.
func (h *EndpointHandler) CheckEndpoint(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid endpoint ID",
		})
	}

	e, err := h.reports.OwnedEndpoint(c.UserContext(), middleware.Owner(c), id)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Endpoint not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to load endpoint",
		})
	}

	if !h.dispatcher.Trigger(e.ID) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   true,
			"message": "Scheduler is shutting down",
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Status check initiated",
		"website": e.Name,
	})
}

// CheckAllEndpoints queues an immediate probe of every active endpoint.
func (h *EndpointHandler) CheckAllEndpoints(c *fiber.Ctx) error {
	n, err := h.dispatcher.TriggerAll(c.UserContext(), middleware.Owner(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to start status checks",
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": fmt.Sprintf("Status checks initiated for %d websites", n),
		"count":   n,
	})
}

// GetHistory returns results within ?period= (1h, 24h, 7d, 30d), newest
// first, capped by ?limit=.
func (h *EndpointHandler) GetHistory(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid endpoint ID",
		})
	}

	limit := c.QueryInt("limit", services.DefaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryRows {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": fmt.Sprintf("limit must be between 1 and %d", maxHistoryRows),
		})
	}

	history, err := h.reports.History(c.UserContext(), middleware.Owner(c), id, c.Query("period", services.DefaultHistoryPeriod), limit)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Endpoint not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to load history",
		})
	}
	return c.JSON(history)
}

func (h *EndpointHandler) DashboardStats(c *fiber.Ctx) error {
	stats, err := h.reports.Dashboard(c.UserContext(), middleware.Owner(c))
	if err != nil {
		slog.Error("Failed to build dashboard", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to load dashboard stats",
		})
	}
	return c.JSON(stats)
}
