package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/qaduni/status/internal/models"
	"github.com/qaduni/status/internal/store"
)

const (
	DefaultHistoryPeriod = "24h"
	DefaultHistoryLimit  = 100
	uptimeWindow         = 100
	recentWindow         = 10
)

var historyPeriods = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// ParsePeriod maps a history period name to its length. Unknown names
// fall back to the 24h window.
func ParsePeriod(name string) (string, time.Duration) {
	if d, ok := historyPeriods[name]; ok {
		return name, d
	}
	return DefaultHistoryPeriod, historyPeriods[DefaultHistoryPeriod]
}

// ReportRepository is the read side the reports are built from.
type ReportRepository interface {
	store.EndpointRepository
	RecentResults(ctx context.Context, endpointID uuid.UUID, limit int) ([]models.ProbeResult, error)
	ResultsSince(ctx context.Context, endpointID uuid.UUID, since time.Time, limit int) ([]models.ProbeResult, error)
	CountNotificationsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int64, error)
}

type Reporter struct {
	repo ReportRepository
	now  func() time.Time
}

func NewReporter(repo ReportRepository) *Reporter {
	return &Reporter{repo: repo, now: time.Now}
}

type History struct {
	EndpointID uuid.UUID            `json:"website_id"`
	Endpoint   string               `json:"website"`
	Period     string               `json:"period"`
	Checks     []models.ProbeResult `json:"checks"`
}

type DashboardStats struct {
	TotalEndpoints      int     `json:"total_websites"`
	OnlineEndpoints     int     `json:"online_websites"`
	OfflineEndpoints    int     `json:"offline_websites"`
	AverageResponseTime float64 `json:"average_response_time"`
	AverageUptime       float64 `json:"average_uptime"`
	AlertsLast24h       int64   `json:"alerts_last_24h"`
}

// Summary is the health view attached to an endpoint representation.
type Summary struct {
	Latest *models.ProbeResult  `json:"latest_status_check"`
	Uptime float64              `json:"uptime_percentage"`
	Recent []models.ProbeResult `json:"recent_checks"`
}

// OwnedEndpoint returns the endpoint if it is active and belongs to owner,
// and store.ErrNotFound otherwise.
func (r *Reporter) OwnedEndpoint(ctx context.Context, owner, id uuid.UUID) (*models.Endpoint, error) {
	e, err := r.repo.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.OwnerID != owner || !e.IsActive() {
		return nil, store.ErrNotFound
	}
	return e, nil
}

// History returns the endpoint's results within the period, newest first.
func (r *Reporter) History(ctx context.Context, owner, id uuid.UUID, period string, limit int) (*History, error) {
	e, err := r.OwnedEndpoint(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	name, window := ParsePeriod(period)
	checks, err := r.repo.ResultsSince(ctx, e.ID, r.now().Add(-window), limit)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", e.ID, err)
	}
	if checks == nil {
		checks = []models.ProbeResult{}
	}
	return &History{EndpointID: e.ID, Endpoint: e.Name, Period: name, Checks: checks}, nil
}

// Summarize loads the latest result, uptime and last few checks of e.
func (r *Reporter) Summarize(ctx context.Context, e models.Endpoint) (*Summary, error) {
	window, err := r.repo.RecentResults(ctx, e.ID, uptimeWindow)
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", e.ID, err)
	}

	s := &Summary{Uptime: uptime(window), Recent: []models.ProbeResult{}}
	if len(window) > 0 {
		latest := window[0]
		s.Latest = &latest
	}
	if len(window) > recentWindow {
		s.Recent = window[:recentWindow]
	} else if len(window) > 0 {
		s.Recent = window
	}
	return s, nil
}

// Dashboard aggregates the latest health of the owner's active endpoints.
func (r *Reporter) Dashboard(ctx context.Context, owner uuid.UUID) (*DashboardStats, error) {
	endpoints, err := r.repo.ListActiveByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	stats := &DashboardStats{TotalEndpoints: len(endpoints)}
	var rtSum float64
	var rtCount int
	var uptimeSum float64

	for _, e := range endpoints {
		window, err := r.repo.RecentResults(ctx, e.ID, uptimeWindow)
		if err != nil {
			return nil, fmt.Errorf("dashboard: %w", err)
		}
		uptimeSum += uptime(window)
		if len(window) == 0 {
			continue
		}

		latest := window[0]
		if latest.Outcome == models.OutcomeOnline {
			stats.OnlineEndpoints++
		} else {
			stats.OfflineEndpoints++
		}
		if latest.ResponseTimeMs != nil {
			rtSum += float64(*latest.ResponseTimeMs)
			rtCount++
		}
	}

	if rtCount > 0 {
		stats.AverageResponseTime = round2(rtSum / float64(rtCount))
	}
	if len(endpoints) > 0 {
		stats.AverageUptime = round2(uptimeSum / float64(len(endpoints)))
	}

	alerts, err := r.repo.CountNotificationsSince(ctx, owner, r.now().Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	stats.AlertsLast24h = alerts
	return stats, nil
}

// uptime is the share of online results in window, as a percentage.
func uptime(window []models.ProbeResult) float64 {
	if len(window) == 0 {
		return 0
	}
	online := 0
	for _, r := range window {
		if r.Outcome == models.OutcomeOnline {
			online++
		}
	}
	return float64(online) / float64(len(window)) * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
