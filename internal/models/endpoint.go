package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EndpointStatus string

const (
	EndpointActive  EndpointStatus = "active"
	EndpointPaused  EndpointStatus = "paused"
	EndpointDeleted EndpointStatus = "deleted"
)

const (
	DefaultCheckIntervalSeconds = 60
	DefaultTimeoutSeconds       = 10
)

// Endpoint is a user-registered URL being monitored. Deletion is logical:
// Status moves to deleted and the row (with its history) stays.
type Endpoint struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name                 string         `gorm:"not null" json:"name"`
	URL                  string         `gorm:"not null;uniqueIndex:idx_endpoint_owner_url,where:status <> 'deleted'" json:"url"`
	OwnerID              uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_endpoint_owner_url,where:status <> 'deleted'" json:"owner_id"`
	Status               EndpointStatus `gorm:"not null;index" json:"status"`
	CheckIntervalSeconds int            `gorm:"not null" json:"check_interval"`
	TimeoutSeconds       int            `gorm:"not null" json:"timeout"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

func (e *Endpoint) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = EndpointActive
	}
	return nil
}

func (e Endpoint) IsActive() bool { return e.Status == EndpointActive }

func (e Endpoint) CheckInterval() time.Duration {
	return time.Duration(e.CheckIntervalSeconds) * time.Second
}

func (e Endpoint) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}
