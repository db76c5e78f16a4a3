package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Outcome string

const (
	OutcomeOnline  Outcome = "online"
	OutcomeOffline Outcome = "offline"
	OutcomeSlow    Outcome = "slow"
	OutcomeError   Outcome = "error"
)

// IsDown reports whether the outcome counts as the endpoint being down.
func (o Outcome) IsDown() bool {
	return o == OutcomeOffline || o == OutcomeError
}

// ProbeResult is the immutable record of one probe. Only the retention
// manager ever deletes rows.
type ProbeResult struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EndpointID     uuid.UUID `gorm:"type:uuid;not null;index:idx_result_endpoint_checked,priority:1" json:"endpoint_id"`
	Outcome        Outcome   `gorm:"not null;index" json:"status"`
	StatusCode     *int      `json:"status_code"`
	ResponseTimeMs *int      `json:"response_time"`
	ErrorMessage   *string   `gorm:"type:text" json:"error_message"`
	CheckedAt      time.Time `gorm:"not null;index:idx_result_endpoint_checked,priority:2,sort:desc" json:"checked_at"`
}

func (r *ProbeResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
