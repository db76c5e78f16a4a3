package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/qaduni/status/internal/alerting"
	"github.com/qaduni/status/internal/hub"
	"github.com/qaduni/status/internal/models"
	"github.com/qaduni/status/internal/retention"
	"github.com/qaduni/status/internal/store"
)

const (
	DefaultCheckCadence     = 60 * time.Second
	DefaultRetentionCadence = 24 * time.Hour
	DefaultMaxConcurrency   = 64

	// dueSlack absorbs cron jitter so an endpoint whose interval equals the
	// check cadence is probed on every tick.
	dueSlack = time.Second
)

type Prober interface {
	Probe(ctx context.Context, e models.Endpoint) models.ProbeResult
}

type Broadcaster interface {
	Broadcast(evt hub.Event)
}

// Task is one entry of the scheduler's periodic task registry.
type Task struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context)
}

type SchedulerConfig struct {
	CheckCadence     time.Duration
	RetentionCadence time.Duration
	MaxConcurrency   int
}

// Scheduler drives periodic and on-demand probes. Probes of different
// endpoints run concurrently up to MaxConcurrency; probes of the same
// endpoint are serialized.
type Scheduler struct {
	repo      store.Repository
	prober    Prober
	evaluator *alerting.Evaluator
	retention *retention.Manager
	events    Broadcaster
	cfg       SchedulerConfig

	cron  *cron.Cron
	sem   *semaphore.Weighted
	locks *endpointLocks
	now   func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	stopped      bool
	lastDispatch map[uuid.UUID]time.Time
	wg           sync.WaitGroup
}

func NewScheduler(repo store.Repository, prober Prober, evaluator *alerting.Evaluator, keeper *retention.Manager, events Broadcaster, cfg SchedulerConfig) *Scheduler {
	if cfg.CheckCadence <= 0 {
		cfg.CheckCadence = DefaultCheckCadence
	}
	if cfg.RetentionCadence <= 0 {
		cfg.RetentionCadence = DefaultRetentionCadence
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}

	logger := cronLogger{l: slog.Default()}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		repo:      repo,
		prober:    prober,
		evaluator: evaluator,
		retention: keeper,
		events:    events,
		cfg:       cfg,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		sem:          semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		locks:        newEndpointLocks(),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
		lastDispatch: make(map[uuid.UUID]time.Time),
	}
}

// Tasks is the periodic task registry installed by Start.
func (s *Scheduler) Tasks() []Task {
	return []Task{
		{
			Name:  "check-endpoints",
			Every: s.cfg.CheckCadence,
			Run: func(ctx context.Context) {
				if _, err := s.Tick(ctx); err != nil {
					slog.Error("Scheduled check pass failed", "error", err)
				}
			},
		},
		{
			Name:  "trim-history",
			Every: s.cfg.RetentionCadence,
			Run: func(ctx context.Context) {
				if _, err := s.RunRetention(ctx); err != nil {
					slog.Error("Scheduled retention failed", "error", err)
				}
			},
		},
	}
}

// Start registers the task registry on cron, starts it and runs a first
// check pass right away.
func (s *Scheduler) Start() error {
	for _, task := range s.Tasks() {
		task := task
		spec := "@every " + task.Every.String()
		if _, err := s.cron.AddFunc(spec, func() { task.Run(s.ctx) }); err != nil {
			return fmt.Errorf("register task %s: %w", task.Name, err)
		}
		slog.Info("Registered periodic task", "task", task.Name, "every", task.Every.String())
	}

	s.cron.Start()
	s.spawn(func() {
		if _, err := s.Tick(s.ctx); err != nil {
			slog.Error("Initial check pass failed", "error", err)
		}
	})

	slog.Info("Scheduler started", "max_concurrency", s.cfg.MaxConcurrency)
	return nil
}

// Stop halts the cron entries and waits for in-flight probes. When ctx
// expires first, outstanding probes are cancelled and ctx's error returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.cancel()
	slog.Info("Scheduler stopped")
	return err
}

// Wait blocks until every dispatched probe has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) spawn(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *Scheduler) due(e models.Endpoint, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastDispatch[e.ID]
	return !ok || now.Sub(last)+dueSlack >= e.CheckInterval()
}

func (s *Scheduler) markDispatched(id uuid.UUID, now time.Time) {
	s.mu.Lock()
	s.lastDispatch[id] = now
	s.mu.Unlock()
}

// forget drops bookkeeping for endpoints that are no longer active.
func (s *Scheduler) forget(active []models.Endpoint) {
	keep := make(map[uuid.UUID]struct{}, len(active))
	for _, e := range active {
		keep[e.ID] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.lastDispatch {
		if _, ok := keep[id]; !ok {
			delete(s.lastDispatch, id)
		}
	}
}

// Tick dispatches an asynchronous probe for every active endpoint whose
// check interval has elapsed and returns how many were dispatched.
// Endpoints with a probe still in flight are skipped.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	endpoints, err := s.repo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("tick: %w", err)
	}
	s.forget(endpoints)

	now := s.now()
	dispatched := 0
	for _, e := range endpoints {
		if !s.due(e, now) {
			continue
		}
		if !s.locks.TryLock(e.ID) {
			slog.Debug("Probe still in flight, skipping", "endpoint", e.Name)
			continue
		}

		id := e.ID
		ok := s.spawn(func() {
			defer s.locks.Unlock(id)
			if _, _, err := s.dispatchLocked(s.ctx, id); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					slog.Warn("Endpoint vanished before its probe", "endpoint_id", id)
					return
				}
				slog.Error("Probe dispatch failed", "endpoint_id", id, "error", err)
			}
		})
		if !ok {
			s.locks.Unlock(id)
			break
		}
		s.markDispatched(id, now)
		dispatched++
	}

	if dispatched > 0 {
		slog.Debug("Check pass dispatched probes", "dispatched", dispatched, "active", len(endpoints))
	}
	return dispatched, nil
}

// DispatchOne probes one endpoint now, waiting for any probe of the same
// endpoint already running. Unknown or inactive endpoints yield
// store.ErrNotFound.
func (s *Scheduler) DispatchOne(ctx context.Context, id uuid.UUID) (*models.ProbeResult, []models.AlertNotification, error) {
	if err := s.locks.Lock(ctx, id); err != nil {
		return nil, nil, fmt.Errorf("wait for endpoint %s: %w", id, err)
	}
	defer s.locks.Unlock(id)
	return s.dispatchLocked(ctx, id)
}

// Trigger runs DispatchOne in the background. It reports false once the
// scheduler is stopping.
func (s *Scheduler) Trigger(id uuid.UUID) bool {
	return s.spawn(func() {
		if _, _, err := s.DispatchOne(s.ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				slog.Warn("Endpoint no longer active, skipping manual probe", "endpoint_id", id)
				return
			}
			slog.Error("Manual probe failed", "endpoint_id", id, "error", err)
		}
	})
}

// TriggerAll triggers every active endpoint of the owner and returns how
// many were triggered.
func (s *Scheduler) TriggerAll(ctx context.Context, owner uuid.UUID) (int, error) {
	endpoints, err := s.repo.ListActiveByOwner(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("trigger all: %w", err)
	}
	n := 0
	for _, e := range endpoints {
		if !s.Trigger(e.ID) {
			break
		}
		n++
	}
	return n, nil
}

// RunRetention trims the history of every active endpoint.
func (s *Scheduler) RunRetention(ctx context.Context) (int64, error) {
	endpoints, err := s.repo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("retention: %w", err)
	}
	deleted, err := s.retention.TrimAll(ctx, endpoints)
	slog.Info("Retention pass finished", "endpoints", len(endpoints), "deleted", deleted, "keep", s.retention.Keep())
	return deleted, err
}

// dispatchLocked must run with the endpoint's lock held.
func (s *Scheduler) dispatchLocked(ctx context.Context, id uuid.UUID) (*models.ProbeResult, []models.AlertNotification, error) {
	e, err := s.repo.GetEndpoint(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("dispatch %s: %w", id, err)
	}
	if !e.IsActive() {
		return nil, nil, fmt.Errorf("dispatch %s (%s): %w", id, e.Status, store.ErrNotFound)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, fmt.Errorf("acquire probe slot: %w", err)
	}
	defer s.sem.Release(1)

	return s.process(ctx, *e)
}

func (s *Scheduler) process(ctx context.Context, e models.Endpoint) (*models.ProbeResult, []models.AlertNotification, error) {
	result := s.prober.Probe(ctx, e)
	result.EndpointID = e.ID
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}

	latest, err := s.repo.LatestResult(ctx, e.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load latest result: %w", err)
	}
	result.CheckedAt = s.stamp(latest)

	rules, err := s.repo.ActiveRulesFor(ctx, e.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load alert rules: %w", err)
	}

	notifications, err := s.evaluator.Evaluate(ctx, e, result, rules, s.repo)
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate alerts: %w", err)
	}

	if err := s.repo.RecordProbe(ctx, &result, notifications); err != nil {
		return nil, nil, fmt.Errorf("record probe for %s: %w", e.Name, err)
	}

	slog.Debug("Probe recorded",
		"endpoint", e.Name,
		"status", result.Outcome,
		"response_ms", result.ResponseTimeMs,
	)
	for _, n := range notifications {
		slog.Info("Alert fired", "endpoint", e.Name, "rule_id", n.RuleID, "message", n.Message)
	}

	s.publish(e, result, notifications)
	return &result, notifications, nil
}

// stamp returns the checked_at for a new result: now, pushed strictly past
// the newest stored result when the clock has not moved on.
func (s *Scheduler) stamp(latest *models.ProbeResult) time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	if latest != nil && !t.After(latest.CheckedAt) {
		t = latest.CheckedAt.UTC().Add(time.Microsecond)
	}
	return t
}

func (s *Scheduler) publish(e models.Endpoint, result models.ProbeResult, notifications []models.AlertNotification) {
	if s.events == nil {
		return
	}
	s.events.Broadcast(hub.Event{
		Type:       hub.EventProbeResult,
		EndpointID: e.ID,
		Owner:      e.OwnerID,
		Payload:    result,
	})
	for _, n := range notifications {
		s.events.Broadcast(hub.Event{
			Type:       hub.EventAlertFired,
			EndpointID: e.ID,
			Owner:      e.OwnerID,
			Payload:    n,
		})
	}
}
