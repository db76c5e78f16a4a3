package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qaduni/status/internal/hub"
	"github.com/qaduni/status/internal/models"
	"github.com/qaduni/status/internal/store"
)

// memRepo is an in-memory store.Repository.
type memRepo struct {
	mu            sync.Mutex
	endpoints     map[uuid.UUID]models.Endpoint
	results       map[uuid.UUID][]models.ProbeResult
	rules         []models.AlertRule
	notifications []models.AlertNotification
	recordErr     error
}

var _ store.Repository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		endpoints: make(map[uuid.UUID]models.Endpoint),
		results:   make(map[uuid.UUID][]models.ProbeResult),
	}
}

func (m *memRepo) addEndpoint(owner uuid.UUID, name string, interval int) models.Endpoint {
	e := models.Endpoint{
		ID:                   uuid.New(),
		Name:                 name,
		URL:                  "https://" + name + ".example.com",
		OwnerID:              owner,
		Status:               models.EndpointActive,
		CheckIntervalSeconds: interval,
		TimeoutSeconds:       10,
		CreatedAt:            time.Now(),
	}
	m.mu.Lock()
	m.endpoints[e.ID] = e
	m.mu.Unlock()
	return e
}

func (m *memRepo) addRule(e models.Endpoint, kind models.AlertKind, threshold int) models.AlertRule {
	r := models.AlertRule{ID: uuid.New(), EndpointID: e.ID, Kind: kind, Threshold: threshold, Active: true}
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
	return r
}

func (m *memRepo) setStatus(id uuid.UUID, status models.EndpointStatus) {
	m.mu.Lock()
	e := m.endpoints[id]
	e.Status = status
	m.endpoints[id] = e
	m.mu.Unlock()
}

func (m *memRepo) insert(r models.ProbeResult) {
	rs := append(m.results[r.EndpointID], r)
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].CheckedAt.After(rs[j].CheckedAt) })
	m.results[r.EndpointID] = rs
}

func (m *memRepo) seed(r models.ProbeResult) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.mu.Lock()
	m.insert(r)
	m.mu.Unlock()
}

func (m *memRepo) history(id uuid.UUID) []models.ProbeResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ProbeResult(nil), m.results[id]...)
}

func (m *memRepo) notes() []models.AlertNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AlertNotification(nil), m.notifications...)
}

func (m *memRepo) active(owner *uuid.UUID) []models.Endpoint {
	var out []models.Endpoint
	for _, e := range m.endpoints {
		if e.IsActive() && (owner == nil || e.OwnerID == *owner) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *memRepo) ListActive(ctx context.Context) ([]models.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active(nil), nil
}

func (m *memRepo) ListActiveByOwner(ctx context.Context, owner uuid.UUID) ([]models.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active(&owner), nil
}

func (m *memRepo) GetEndpoint(ctx context.Context, id uuid.UUID) (*models.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.endpoints[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (m *memRepo) AppendResult(ctx context.Context, r *models.ProbeResult) error {
	m.seed(*r)
	return nil
}

func (m *memRepo) RecentResults(ctx context.Context, id uuid.UUID, limit int) ([]models.ProbeResult, error) {
	rs := m.history(id)
	if len(rs) > limit {
		rs = rs[:limit]
	}
	return rs, nil
}

func (m *memRepo) LatestResult(ctx context.Context, id uuid.UUID) (*models.ProbeResult, error) {
	return m.NthLatestResult(ctx, id, 1)
}

func (m *memRepo) PreviousResult(ctx context.Context, id uuid.UUID, before time.Time) (*models.ProbeResult, error) {
	for _, r := range m.history(id) {
		if r.CheckedAt.Before(before) {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memRepo) NthLatestResult(ctx context.Context, id uuid.UUID, n int) (*models.ProbeResult, error) {
	rs := m.history(id)
	if len(rs) < n {
		return nil, nil
	}
	r := rs[n-1]
	return &r, nil
}

func (m *memRepo) ResultsSince(ctx context.Context, id uuid.UUID, since time.Time, limit int) ([]models.ProbeResult, error) {
	var out []models.ProbeResult
	for _, r := range m.history(id) {
		if r.CheckedAt.Before(since) || len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memRepo) DeleteResultsOlderThan(ctx context.Context, id uuid.UUID, ts time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []models.ProbeResult
	var deleted int64
	for _, r := range m.results[id] {
		if r.CheckedAt.Before(ts) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.results[id] = kept
	return deleted, nil
}

func (m *memRepo) ActiveRulesFor(ctx context.Context, id uuid.UUID) ([]models.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AlertRule
	for _, r := range m.rules {
		if r.EndpointID == id && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) AppendNotification(ctx context.Context, n *models.AlertNotification) error {
	m.mu.Lock()
	m.notifications = append(m.notifications, *n)
	m.mu.Unlock()
	return nil
}

func (m *memRepo) CountNotificationsSince(ctx context.Context, owner uuid.UUID, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owned := make(map[uuid.UUID]bool)
	for _, r := range m.rules {
		if e, ok := m.endpoints[r.EndpointID]; ok && e.OwnerID == owner {
			owned[r.ID] = true
		}
	}
	var n int64
	for _, note := range m.notifications {
		if owned[note.RuleID] && !note.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) RecordProbe(ctx context.Context, r *models.ProbeResult, notes []models.AlertNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.insert(*r)
	for i := range notes {
		notes[i].ResultID = r.ID
		m.notifications = append(m.notifications, notes[i])
	}
	return nil
}

// scriptedProber returns queued results per endpoint, falling back to a
// fast online result. A non-nil gate blocks every probe until closed.
type scriptedProber struct {
	mu      sync.Mutex
	queue   map[uuid.UUID][]models.ProbeResult
	gate    chan struct{}
	started chan uuid.UUID
	calls   int
}

func newScriptedProber() *scriptedProber {
	return &scriptedProber{queue: make(map[uuid.UUID][]models.ProbeResult)}
}

func (p *scriptedProber) push(id uuid.UUID, outcome models.Outcome, rt int, errMsg string) {
	r := models.ProbeResult{EndpointID: id, Outcome: outcome, ResponseTimeMs: &rt}
	if errMsg != "" {
		r.ErrorMessage = &errMsg
	}
	p.mu.Lock()
	p.queue[id] = append(p.queue[id], r)
	p.mu.Unlock()
}

func (p *scriptedProber) Probe(ctx context.Context, e models.Endpoint) models.ProbeResult {
	p.mu.Lock()
	p.calls++
	gate, started := p.gate, p.started
	var r models.ProbeResult
	if q := p.queue[e.ID]; len(q) > 0 {
		r, p.queue[e.ID] = q[0], q[1:]
	} else {
		rt := 120
		code := 200
		r = models.ProbeResult{EndpointID: e.ID, Outcome: models.OutcomeOnline, StatusCode: &code, ResponseTimeMs: &rt}
	}
	p.mu.Unlock()

	if started != nil {
		started <- e.ID
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	return r
}

func (p *scriptedProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingHub struct {
	mu     sync.Mutex
	events []hub.Event
}

func (h *recordingHub) Broadcast(evt hub.Event) {
	h.mu.Lock()
	h.events = append(h.events, evt)
	h.mu.Unlock()
}

func (h *recordingHub) all() []hub.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hub.Event(nil), h.events...)
}

var errStorage = errors.New("storage unavailable")
