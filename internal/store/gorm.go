package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qaduni/status/internal/models"
)

// Store implements Repository on top of gorm.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) ListActive(ctx context.Context) ([]models.Endpoint, error) {
	var endpoints []models.Endpoint
	err := s.db.WithContext(ctx).
		Where("status = ?", models.EndpointActive).
		Order("created_at").
		Find(&endpoints).Error
	if err != nil {
		return nil, fmt.Errorf("list active endpoints: %w", err)
	}
	return endpoints, nil
}

func (s *Store) ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Endpoint, error) {
	var endpoints []models.Endpoint
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, models.EndpointActive).
		Order("created_at DESC").
		Find(&endpoints).Error
	if err != nil {
		return nil, fmt.Errorf("list endpoints for owner %s: %w", ownerID, err)
	}
	return endpoints, nil
}

func (s *Store) GetEndpoint(ctx context.Context, id uuid.UUID) (*models.Endpoint, error) {
	var e models.Endpoint
	err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint %s: %w", id, err)
	}
	return &e, nil
}

func (s *Store) AppendResult(ctx context.Context, result *models.ProbeResult) error {
	if err := s.db.WithContext(ctx).Create(result).Error; err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

func (s *Store) RecentResults(ctx context.Context, endpointID uuid.UUID, limit int) ([]models.ProbeResult, error) {
	var results []models.ProbeResult
	err := s.db.WithContext(ctx).
		Where("endpoint_id = ?", endpointID).
		Order("checked_at DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	return results, nil
}

func (s *Store) LatestResult(ctx context.Context, endpointID uuid.UUID) (*models.ProbeResult, error) {
	return s.NthLatestResult(ctx, endpointID, 1)
}

func (s *Store) PreviousResult(ctx context.Context, endpointID uuid.UUID, before time.Time) (*models.ProbeResult, error) {
	var results []models.ProbeResult
	err := s.db.WithContext(ctx).
		Where("endpoint_id = ? AND checked_at < ?", endpointID, before).
		Order("checked_at DESC").
		Limit(1).
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("previous result: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func (s *Store) NthLatestResult(ctx context.Context, endpointID uuid.UUID, n int) (*models.ProbeResult, error) {
	if n < 1 {
		return nil, fmt.Errorf("nth latest result: n must be positive, got %d", n)
	}
	var results []models.ProbeResult
	err := s.db.WithContext(ctx).
		Where("endpoint_id = ?", endpointID).
		Order("checked_at DESC").
		Offset(n - 1).
		Limit(1).
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("nth latest result: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

func (s *Store) ResultsSince(ctx context.Context, endpointID uuid.UUID, since time.Time, limit int) ([]models.ProbeResult, error) {
	var results []models.ProbeResult
	err := s.db.WithContext(ctx).
		Where("endpoint_id = ? AND checked_at >= ?", endpointID, since).
		Order("checked_at DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("results since: %w", err)
	}
	return results, nil
}

func (s *Store) DeleteResultsOlderThan(ctx context.Context, endpointID uuid.UUID, ts time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("endpoint_id = ? AND checked_at < ?", endpointID, ts).
		Delete(&models.ProbeResult{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete results older than %s: %w", ts.Format(time.RFC3339), res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) ActiveRulesFor(ctx context.Context, endpointID uuid.UUID) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	err := s.db.WithContext(ctx).
		Where("endpoint_id = ? AND active = ?", endpointID, true).
		Order("created_at").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("active rules: %w", err)
	}
	return rules, nil
}

func (s *Store) AppendNotification(ctx context.Context, n *models.AlertNotification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

func (s *Store) CountNotificationsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.AlertNotification{}).
		Joins("JOIN alert_rules ON alert_rules.id = alert_notifications.rule_id").
		Joins("JOIN endpoints ON endpoints.id = alert_rules.endpoint_id").
		Where("endpoints.owner_id = ? AND alert_notifications.created_at >= ?", ownerID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

func (s *Store) RecordProbe(ctx context.Context, result *models.ProbeResult, notifications []models.AlertNotification) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(result).Error; err != nil {
			return fmt.Errorf("record result: %w", err)
		}
		if len(notifications) == 0 {
			return nil
		}
		for i := range notifications {
			notifications[i].ResultID = result.ID
		}
		if err := tx.Create(&notifications).Error; err != nil {
			return fmt.Errorf("record notifications: %w", err)
		}
		return nil
	})
}
