package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/qaduni/status/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a uniqueness constraint would be violated.
	ErrDuplicate = errors.New("duplicate")
)

// EndpointRepository reads the endpoints the engine schedules.
type EndpointRepository interface {
	ListActive(ctx context.Context) ([]models.Endpoint, error)
	ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Endpoint, error)
	// GetEndpoint returns ErrNotFound when no endpoint has the id.
	GetEndpoint(ctx context.Context, id uuid.UUID) (*models.Endpoint, error)
}

// ResultRepository stores probe history. Every list is ordered by
// checked_at descending.
type ResultRepository interface {
	AppendResult(ctx context.Context, result *models.ProbeResult) error
	RecentResults(ctx context.Context, endpointID uuid.UUID, limit int) ([]models.ProbeResult, error)
	// LatestResult returns nil, nil when the endpoint has no history.
	LatestResult(ctx context.Context, endpointID uuid.UUID) (*models.ProbeResult, error)
	// PreviousResult returns the newest result strictly older than before,
	// or nil, nil.
	PreviousResult(ctx context.Context, endpointID uuid.UUID, before time.Time) (*models.ProbeResult, error)
	// NthLatestResult returns the n-th most recent result (1-based), or
	// nil, nil when fewer than n exist.
	NthLatestResult(ctx context.Context, endpointID uuid.UUID, n int) (*models.ProbeResult, error)
	ResultsSince(ctx context.Context, endpointID uuid.UUID, since time.Time, limit int) ([]models.ProbeResult, error)
	DeleteResultsOlderThan(ctx context.Context, endpointID uuid.UUID, ts time.Time) (int64, error)
}

type RuleRepository interface {
	ActiveRulesFor(ctx context.Context, endpointID uuid.UUID) ([]models.AlertRule, error)
}

type NotificationRepository interface {
	AppendNotification(ctx context.Context, n *models.AlertNotification) error
	CountNotificationsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int64, error)
}

// Recorder persists a probe result and the notifications it triggered as
// one unit: readers never see a notification without its result.
type Recorder interface {
	RecordProbe(ctx context.Context, result *models.ProbeResult, notifications []models.AlertNotification) error
}

// Repository is everything the monitoring engine needs from storage.
type Repository interface {
	EndpointRepository
	ResultRepository
	RuleRepository
	NotificationRepository
	Recorder
}
