package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AlertKind string

const (
	AlertDown AlertKind = "down"
	AlertSlow AlertKind = "slow"
	AlertUp   AlertKind = "up"
)

func (k AlertKind) Valid() bool {
	switch k {
	case AlertDown, AlertSlow, AlertUp:
		return true
	}
	return false
}

// Display is the human label used in notification messages.
func (k AlertKind) Display() string {
	switch k {
	case AlertDown:
		return "Website Down"
	case AlertSlow:
		return "Slow Response"
	case AlertUp:
		return "Website Back Up"
	}
	return string(k)
}

// AlertRule is at most one per (endpoint, kind). Threshold is a response
// time bound in ms and only meaningful for slow rules.
type AlertRule struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EndpointID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_rule_endpoint_kind" json:"endpoint_id"`
	Kind       AlertKind `gorm:"not null;uniqueIndex:idx_rule_endpoint_kind" json:"alert_type"`
	Threshold  int       `gorm:"not null" json:"threshold"`
	Active     bool      `gorm:"not null" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *AlertRule) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

type AlertNotification struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RuleID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"alert_id"`
	ResultID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"status_check_id"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `gorm:"not null;index" json:"sent_at"`
}

func (n *AlertNotification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
