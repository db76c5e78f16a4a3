// Package retention bounds the probe history kept per endpoint.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/qaduni/status/internal/models"
)

const DefaultKeep = 1000

// Results is the slice of the result repository retention needs.
type Results interface {
	NthLatestResult(ctx context.Context, endpointID uuid.UUID, n int) (*models.ProbeResult, error)
	DeleteResultsOlderThan(ctx context.Context, endpointID uuid.UUID, ts time.Time) (int64, error)
}

type Manager struct {
	results Results
	keep    int
}

// New returns a Manager keeping the keep most recent results per endpoint.
// A non-positive keep falls back to DefaultKeep.
func New(results Results, keep int) *Manager {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Manager{results: results, keep: keep}
}

func (m *Manager) Keep() int { return m.keep }

// Trim deletes every result of the endpoint strictly older than its
// keep-th most recent one and reports how many rows went away.
func (m *Manager) Trim(ctx context.Context, endpoint models.Endpoint) (int64, error) {
	cutoff, err := m.results.NthLatestResult(ctx, endpoint.ID, m.keep)
	if err != nil {
		return 0, fmt.Errorf("find retention cutoff for %s: %w", endpoint.ID, err)
	}
	if cutoff == nil {
		return 0, nil
	}

	deleted, err := m.results.DeleteResultsOlderThan(ctx, endpoint.ID, cutoff.CheckedAt)
	if err != nil {
		return 0, fmt.Errorf("trim results for %s: %w", endpoint.ID, err)
	}
	if deleted > 0 {
		slog.Debug("Trimmed probe history", "endpoint", endpoint.Name, "deleted", deleted)
	}
	return deleted, nil
}

// TrimAll trims every endpoint, continuing past failures. The returned
// error joins the failures of individual endpoints.
func (m *Manager) TrimAll(ctx context.Context, endpoints []models.Endpoint) (int64, error) {
	var total int64
	var errs []error

	for _, e := range endpoints {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := m.Trim(ctx, e)
		if err != nil {
			slog.Error("Retention failed", "endpoint", e.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		total += n
	}

	return total, errors.Join(errs...)
}
