package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/qaduni/status/internal/models"
)

type stubHistory struct {
	prev  *models.ProbeResult
	err   error
	calls int
}

func (s *stubHistory) PreviousResult(ctx context.Context, endpointID uuid.UUID, before time.Time) (*models.ProbeResult, error) {
	s.calls++
	return s.prev, s.err
}

var checkedAt = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func fixture() models.Endpoint {
	return models.Endpoint{ID: uuid.New(), Name: "Shop", URL: "https://shop.example.com"}
}

func rule(e models.Endpoint, kind models.AlertKind, threshold int) models.AlertRule {
	return models.AlertRule{ID: uuid.New(), EndpointID: e.ID, Kind: kind, Threshold: threshold, Active: true}
}

func result(e models.Endpoint, outcome models.Outcome, rt int, errMsg string) models.ProbeResult {
	r := models.ProbeResult{ID: uuid.New(), EndpointID: e.ID, Outcome: outcome, ResponseTimeMs: &rt, CheckedAt: checkedAt}
	if errMsg != "" {
		r.ErrorMessage = &errMsg
	}
	return r
}

func newTestEvaluator() *Evaluator {
	ev := New()
	ev.now = func() time.Time { return checkedAt.Add(time.Second) }
	return ev
}

func TestEvaluate_DownFiresForOfflineAndError(t *testing.T) {
	e := fixture()
	tests := []struct {
		outcome models.Outcome
		want    int
	}{
		{models.OutcomeOffline, 1},
		{models.OutcomeError, 1},
		{models.OutcomeOnline, 0},
		{models.OutcomeSlow, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			rules := []models.AlertRule{rule(e, models.AlertDown, 12345)}
			got, err := newTestEvaluator().Evaluate(context.Background(), e, result(e, tt.outcome, 100, ""), rules, &stubHistory{})
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("notifications: got %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestEvaluate_DownMessage(t *testing.T) {
	e := fixture()
	r := result(e, models.OutcomeOffline, 10000, "Request timeout")
	down := rule(e, models.AlertDown, 0)

	got, err := newTestEvaluator().Evaluate(context.Background(), e, r, []models.AlertRule{down}, &stubHistory{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("notifications: got %d, want 1", len(got))
	}

	n := got[0]
	want := "Alert for Shop: Website Down - Status: offline - Error: Request timeout"
	if n.Message != want {
		t.Errorf("Message:\n got %q\nwant %q", n.Message, want)
	}
	if n.RuleID != down.ID || n.ResultID != r.ID {
		t.Errorf("notification references: rule %s result %s", n.RuleID, n.ResultID)
	}
	if !n.CreatedAt.Equal(checkedAt.Add(time.Second)) {
		t.Errorf("CreatedAt: got %s", n.CreatedAt)
	}

	var d Details
	if err := json.Unmarshal(n.Details, &d); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if d.Kind != models.AlertDown || d.Endpoint != "Shop" || d.Outcome != models.OutcomeOffline {
		t.Errorf("details: %+v", d)
	}
	if d.Threshold != nil {
		t.Errorf("details threshold: got %d, want omitted", *d.Threshold)
	}
}

func TestEvaluate_SlowIsStrict(t *testing.T) {
	e := fixture()
	tests := []struct {
		name string
		rt   int
		want int
	}{
		{"above threshold", 2501, 1},
		{"equal to threshold", 2500, 0},
		{"below threshold", 900, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := []models.AlertRule{rule(e, models.AlertSlow, 2500)}
			got, err := newTestEvaluator().Evaluate(context.Background(), e, result(e, models.OutcomeOnline, tt.rt, ""), rules, &stubHistory{})
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("notifications: got %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestEvaluate_SlowIgnoresMissingResponseTime(t *testing.T) {
	e := fixture()
	r := result(e, models.OutcomeError, 0, "boom")
	r.ResponseTimeMs = nil

	got, err := newTestEvaluator().Evaluate(context.Background(), e, r, []models.AlertRule{rule(e, models.AlertSlow, 0)}, &stubHistory{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("notifications: got %d, want 0", len(got))
	}
}

func TestEvaluate_SlowFiresRegardlessOfOutcome(t *testing.T) {
	e := fixture()
	r := result(e, models.OutcomeOffline, 10000, "Request timeout")

	got, err := newTestEvaluator().Evaluate(context.Background(), e, r, []models.AlertRule{rule(e, models.AlertSlow, 5000)}, &stubHistory{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("notifications: got %d, want 1", len(got))
	}
	want := "Alert for Shop: Slow Response - Response time: 10000ms (threshold: 5000ms)"
	if got[0].Message != want {
		t.Errorf("Message:\n got %q\nwant %q", got[0].Message, want)
	}
}

func TestEvaluate_Up(t *testing.T) {
	e := fixture()
	down := result(e, models.OutcomeOffline, 10000, "Request timeout")
	down.CheckedAt = checkedAt.Add(-time.Minute)
	slow := result(e, models.OutcomeSlow, 4000, "")
	slow.CheckedAt = checkedAt.Add(-time.Minute)

	tests := []struct {
		name    string
		outcome models.Outcome
		prev    *models.ProbeResult
		want    int
	}{
		{"recovery after down", models.OutcomeOnline, &down, 1},
		{"first result ever", models.OutcomeOnline, nil, 0},
		{"online after slow", models.OutcomeOnline, &slow, 0},
		{"slow after down is not a recovery", models.OutcomeSlow, &down, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := []models.AlertRule{rule(e, models.AlertUp, 0)}
			got, err := newTestEvaluator().Evaluate(context.Background(), e, result(e, tt.outcome, 120, ""), rules, &stubHistory{prev: tt.prev})
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("notifications: got %d, want %d", len(got), tt.want)
			}
			if tt.want == 1 && got[0].Message != "Alert for Shop: Website Back Up - Website is back online" {
				t.Errorf("Message: got %q", got[0].Message)
			}
		})
	}
}

func TestEvaluate_InactiveRulesAreIgnored(t *testing.T) {
	e := fixture()
	down := rule(e, models.AlertDown, 0)
	down.Active = false

	got, err := newTestEvaluator().Evaluate(context.Background(), e, result(e, models.OutcomeOffline, 100, ""), []models.AlertRule{down}, &stubHistory{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("notifications: got %d, want 0", len(got))
	}
}

func TestEvaluate_MultipleRulesFireTogether(t *testing.T) {
	e := fixture()
	rules := []models.AlertRule{
		rule(e, models.AlertDown, 0),
		rule(e, models.AlertSlow, 3000),
		rule(e, models.AlertUp, 0),
	}
	hist := &stubHistory{}

	got, err := newTestEvaluator().Evaluate(context.Background(), e, result(e, models.OutcomeOffline, 10000, "Request timeout"), rules, hist)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("notifications: got %d, want down and slow", len(got))
	}
	if hist.calls != 0 {
		t.Errorf("history consulted %d times for a down result", hist.calls)
	}
}

func TestEvaluate_HistoryFailure(t *testing.T) {
	e := fixture()
	boom := errors.New("db gone")

	_, err := newTestEvaluator().Evaluate(context.Background(), e, result(e, models.OutcomeOnline, 100, ""), []models.AlertRule{rule(e, models.AlertUp, 0)}, &stubHistory{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("err: got %v, want wrapped %v", err, boom)
	}
}
