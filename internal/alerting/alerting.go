// Package alerting decides which alert rules fire for a fresh probe result
// and renders the notifications they produce.
package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/qaduni/status/internal/models"
)

// HistoryLookup finds the result recorded immediately before a given time.
// It returns nil, nil when there is none.
type HistoryLookup interface {
	PreviousResult(ctx context.Context, endpointID uuid.UUID, before time.Time) (*models.ProbeResult, error)
}

type Evaluator struct {
	now func() time.Time
}

func New() *Evaluator {
	return &Evaluator{now: time.Now}
}

// Details is the structured payload stored with every notification.
type Details struct {
	Kind         models.AlertKind `json:"alert_type"`
	Endpoint     string           `json:"website"`
	URL          string           `json:"url"`
	Outcome      models.Outcome   `json:"status"`
	ResponseTime *int             `json:"response_time,omitempty"`
	Threshold    *int             `json:"threshold,omitempty"`
	Error        *string          `json:"error,omitempty"`
}

// Evaluate returns one notification per active rule that fires for result.
// The history lookup is consulted only when an up rule is present, and its
// failure is the only error this returns.
func (e *Evaluator) Evaluate(ctx context.Context, endpoint models.Endpoint, result models.ProbeResult, rules []models.AlertRule, history HistoryLookup) ([]models.AlertNotification, error) {
	var notifications []models.AlertNotification

	for _, rule := range rules {
		if !rule.Active || rule.EndpointID != endpoint.ID {
			continue
		}

		fired, err := e.fires(ctx, rule, result, history)
		if err != nil {
			return nil, err
		}
		if !fired {
			continue
		}

		n, err := e.notification(endpoint, result, rule)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, nil
}

func (e *Evaluator) fires(ctx context.Context, rule models.AlertRule, result models.ProbeResult, history HistoryLookup) (bool, error) {
	switch rule.Kind {
	case models.AlertDown:
		return result.Outcome.IsDown(), nil
	case models.AlertSlow:
		return result.ResponseTimeMs != nil && *result.ResponseTimeMs > rule.Threshold, nil
	case models.AlertUp:
		if result.Outcome != models.OutcomeOnline {
			return false, nil
		}
		prev, err := history.PreviousResult(ctx, result.EndpointID, result.CheckedAt)
		if err != nil {
			return false, fmt.Errorf("lookup previous result for %s: %w", result.EndpointID, err)
		}
		return prev != nil && prev.Outcome.IsDown(), nil
	}
	return false, nil
}

func (e *Evaluator) notification(endpoint models.Endpoint, result models.ProbeResult, rule models.AlertRule) (models.AlertNotification, error) {
	d := Details{
		Kind:         rule.Kind,
		Endpoint:     endpoint.Name,
		URL:          endpoint.URL,
		Outcome:      result.Outcome,
		ResponseTime: result.ResponseTimeMs,
		Error:        result.ErrorMessage,
	}
	if rule.Kind == models.AlertSlow {
		threshold := rule.Threshold
		d.Threshold = &threshold
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return models.AlertNotification{}, fmt.Errorf("encode alert details: %w", err)
	}

	return models.AlertNotification{
		RuleID:    rule.ID,
		ResultID:  result.ID,
		Message:   Message(endpoint, result, rule),
		Details:   datatypes.JSON(raw),
		CreatedAt: e.now().UTC(),
	}, nil
}

// Message renders the notification text for a rule firing on result.
func Message(endpoint models.Endpoint, result models.ProbeResult, rule models.AlertRule) string {
	msg := fmt.Sprintf("Alert for %s: %s", endpoint.Name, rule.Kind.Display())

	switch rule.Kind {
	case models.AlertDown:
		msg += fmt.Sprintf(" - Status: %s", result.Outcome)
		if result.ErrorMessage != nil && *result.ErrorMessage != "" {
			msg += fmt.Sprintf(" - Error: %s", *result.ErrorMessage)
		}
	case models.AlertSlow:
		rt := 0
		if result.ResponseTimeMs != nil {
			rt = *result.ResponseTimeMs
		}
		msg += fmt.Sprintf(" - Response time: %dms (threshold: %dms)", rt, rule.Threshold)
	case models.AlertUp:
		msg += " - Website is back online"
	}
	return msg
}
