// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the broker consumers.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/shiftmetrics/internal/adapters/cache"
	eventqueue "github.com/okian/shiftmetrics/internal/adapters/mq/queue"
	workerpool "github.com/okian/shiftmetrics/internal/adapters/mq/worker"
	"github.com/okian/shiftmetrics/internal/adapters/repository"
	"github.com/okian/shiftmetrics/internal/domain/accumulator"
	"github.com/okian/shiftmetrics/internal/domain/dedupe"
	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/internal/domain/productivity"
	"github.com/okian/shiftmetrics/pkg/logger"
	"github.com/okian/shiftmetrics/pkg/metrics"
)

// ErrNotStarted is returned by operations that need Start to have run.
var ErrNotStarted = errors.New("service not started")

// Service admits events and serves productivity metrics.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	recent   dedupe.Deduper
	admitter *dedupe.Admitter
	cache    *cache.MetricsCache
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool

	// Configuration
	accumulator  accumulator.Config
	workerCount  int
	queueSize    int
	dedupeSize   int
	workers      []model.Worker
	workstations []model.Workstation
	now          func() time.Time

	// State
	started      bool
	stopping     bool
	defaultStore bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of ingest worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the ingest queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many recent identity keys admission remembers.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the event store. The service owns it and closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithCache enables metric caching.
func WithCache(c *cache.MetricsCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithAccumulator sets the tail and shift window used to close intervals.
func WithAccumulator(cfg accumulator.Config) Option {
	return func(s *Service) {
		s.accumulator = cfg
	}
}

// WithRegistry seeds workers and workstations on Start.
func WithRegistry(workers []model.Worker, workstations []model.Workstation) Option {
	return func(s *Service) {
		s.workers = workers
		s.workstations = workstations
	}
}

// WithClock overrides the clock that stamps received_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		accumulator: accumulator.DefaultConfig(),
		workerCount: runtime.NumCPU() * 2,
		queueSize:   10000,
		dedupeSize:  50000,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the default store if none was given, seeds the registry and
// starts the ingest worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting shiftmetrics service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.defaultStore = true
		s.logger.Info(ctx, "using memory store")
	}
	if err := s.seedRegistry(ctx); err != nil {
		return err
	}

	s.recent = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.admitter = dedupe.NewAdmitter(s.store,
		dedupe.WithRecentKeys(s.recent),
		dedupe.WithClock(s.now),
	)
	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "shiftmetrics service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("tail", s.accumulator.Tail),
		logger.Bool("cache", s.cache != nil),
	)
	return nil
}

func (s *Service) seedRegistry(ctx context.Context) error {
	for _, w := range s.workers {
		if err := s.store.UpsertWorker(ctx, w); err != nil {
			return fmt.Errorf("seed worker %s: %w", w.WorkerID, err)
		}
	}
	for _, st := range s.workstations {
		if err := s.store.UpsertWorkstation(ctx, st); err != nil {
			return fmt.Errorf("seed workstation %s: %w", st.StationID, err)
		}
	}
	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}
	stations, err := s.store.ListWorkstations(ctx)
	if err != nil {
		return fmt.Errorf("list workstations: %w", err)
	}
	metrics.UpdateRegistrySize(len(workers), len(stations))
	return nil
}

// Stop drains the ingest queue and closes the store. Workers keep admitting
// while the queue drains, so the lock is not held during shutdown.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return
	}
	s.stopping = true
	pool, store := s.pool, s.store
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping shiftmetrics service...")

	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	if err := store.Close(); err != nil {
		s.logger.Warn(ctx, "store close failed", logger.Error(err))
	}

	s.mu.Lock()
	s.started = false
	s.stopping = false
	if s.defaultStore {
		s.store = nil
		s.defaultStore = false
	}
	s.mu.Unlock()
	s.logger.Info(ctx, "shiftmetrics service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Ingest admits one candidate event synchronously. The boolean reports
// whether this call created the stored record.
func (s *Service) Ingest(ctx context.Context, source string, in model.EventInput) (model.Event, bool, error) {
	if err := s.ready(); err != nil {
		return model.Event{}, false, err
	}

	start := time.Now()
	e, created, err := s.admitter.Admit(ctx, in)
	metrics.RecordAdmitLatency(float64(time.Since(start).Microseconds()) / 1000)

	switch {
	case errors.Is(err, dedupe.ErrValidation):
		metrics.RecordEventRejected("validation")
		return model.Event{}, false, err
	case errors.Is(err, dedupe.ErrReference):
		metrics.RecordEventRejected("reference")
		return model.Event{}, false, err
	case err != nil:
		metrics.RecordErrorByComponent("service", "admit_error")
		return model.Event{}, false, err
	}

	if created {
		metrics.RecordEventIngested(source)
	} else {
		metrics.RecordEventDuplicate(source)
		s.logger.Debug(ctx, "duplicate event",
			logger.String("event_id", e.ID),
			logger.String("source", source),
		)
	}
	return e, created, nil
}

// Enqueue hands a candidate to the worker pool for asynchronous admission.
func (s *Service) Enqueue(ctx context.Context, m eventqueue.Message) error { //nolint:gocritic // hugeParam: Message is passed by value for channel semantics
	if err := s.ready(); err != nil {
		return err
	}
	return s.queue.Enqueue(ctx, m)
}

// WorkerMetrics computes metrics for every registered worker.
func (s *Service) WorkerMetrics(ctx context.Context, window model.Window) ([]model.WorkerMetric, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	workers, err := s.store.ListWorkers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	out := make([]model.WorkerMetric, 0, len(workers))
	for _, w := range workers {
		m, err := s.workerMetric(ctx, w, window)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// WorkerMetric computes metrics for one worker. Unknown ids wrap
// repository.ErrNotFound.
func (s *Service) WorkerMetric(ctx context.Context, id string, window model.Window) (model.WorkerMetric, error) {
	if err := s.ready(); err != nil {
		return model.WorkerMetric{}, err
	}
	w, err := s.store.Worker(ctx, id)
	if err != nil {
		return model.WorkerMetric{}, fmt.Errorf("worker %s: %w", id, err)
	}
	return s.workerMetric(ctx, w, window)
}

func (s *Service) workerMetric(ctx context.Context, w model.Worker, window model.Window) (model.WorkerMetric, error) {
	var out model.WorkerMetric
	err := s.cached(ctx, repository.ScopeWorker, w.WorkerID, window, &out, func() error {
		events, err := s.store.EventsForWorker(ctx, w.WorkerID)
		if err != nil {
			return fmt.Errorf("events for worker %s: %w", w.WorkerID, err)
		}
		out = productivity.Worker(s.accumulator, w, window.Filter(events)).Metric()
		return nil
	})
	return out, err
}

// WorkstationMetrics computes metrics for every registered workstation.
func (s *Service) WorkstationMetrics(ctx context.Context, window model.Window) ([]model.WorkstationMetric, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	stations, err := s.store.ListWorkstations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workstations: %w", err)
	}
	out := make([]model.WorkstationMetric, 0, len(stations))
	for _, st := range stations {
		m, err := s.workstationMetric(ctx, st, window)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// WorkstationMetric computes metrics for one workstation. Unknown ids wrap
// repository.ErrNotFound.
func (s *Service) WorkstationMetric(ctx context.Context, id string, window model.Window) (model.WorkstationMetric, error) {
	if err := s.ready(); err != nil {
		return model.WorkstationMetric{}, err
	}
	st, err := s.store.Workstation(ctx, id)
	if err != nil {
		return model.WorkstationMetric{}, fmt.Errorf("workstation %s: %w", id, err)
	}
	return s.workstationMetric(ctx, st, window)
}

func (s *Service) workstationMetric(ctx context.Context, st model.Workstation, window model.Window) (model.WorkstationMetric, error) {
	var out model.WorkstationMetric
	err := s.cached(ctx, repository.ScopeWorkstation, st.StationID, window, &out, func() error {
		events, err := s.store.EventsForWorkstation(ctx, st.StationID)
		if err != nil {
			return fmt.Errorf("events for workstation %s: %w", st.StationID, err)
		}
		out = productivity.Workstation(s.accumulator, st, window.Filter(events)).Metric()
		return nil
	})
	return out, err
}

// FactoryMetrics computes the factory-wide summary from every stored event.
func (s *Service) FactoryMetrics(ctx context.Context, window model.Window) (model.FactoryMetric, error) {
	if err := s.ready(); err != nil {
		return model.FactoryMetric{}, err
	}
	var out model.FactoryMetric
	err := s.cached(ctx, repository.ScopeFactory, "", window, &out, func() error {
		events, err := s.store.ListEvents(ctx, model.EventFilter{})
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		events = window.Filter(events)

		workers, err := s.store.ListWorkers(ctx)
		if err != nil {
			return fmt.Errorf("list workers: %w", err)
		}
		stations, err := s.store.ListWorkstations(ctx)
		if err != nil {
			return fmt.Errorf("list workstations: %w", err)
		}

		byWorker := make(map[string][]model.Event)
		byStation := make(map[string][]model.Event)
		for _, e := range events {
			byWorker[e.WorkerID] = append(byWorker[e.WorkerID], e)
			byStation[e.WorkstationID] = append(byStation[e.WorkstationID], e)
		}

		workerResults := make([]productivity.WorkerResult, 0, len(workers))
		for _, w := range workers {
			workerResults = append(workerResults, productivity.Worker(s.accumulator, w, byWorker[w.WorkerID]))
		}
		stationResults := make([]productivity.WorkstationResult, 0, len(stations))
		for _, st := range stations {
			stationResults = append(stationResults, productivity.Workstation(s.accumulator, st, byStation[st.StationID]))
		}
		out = productivity.Factory(workerResults, stationResults).Metric()
		return nil
	})
	return out, err
}

// cached serves dst from the metric cache when the entity's fingerprint is
// unchanged, otherwise runs compute and stores the result.
func (s *Service) cached(ctx context.Context, scope repository.Scope, id string, window model.Window, dst any, compute func() error) error {
	start := time.Now()
	defer func() {
		metrics.RecordComputeLatency(string(scope), float64(time.Since(start).Microseconds())/1000)
	}()

	if s.cache == nil {
		return compute()
	}

	fp, err := s.store.Fingerprint(ctx, scope, id)
	if err != nil {
		s.logger.Warn(ctx, "fingerprint failed, bypassing cache",
			logger.String("scope", string(scope)),
			logger.String("id", id),
			logger.Error(err),
		)
		return compute()
	}
	key := cache.Key(scope, id, s.accumulator.Tail, window, fp)
	if s.cache.Get(ctx, scope, key, dst) {
		return nil
	}
	if err := compute(); err != nil {
		return err
	}
	s.cache.Put(ctx, key, dst)
	return nil
}

// Events lists stored events newest first.
func (s *Service) Events(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if f.Skip < 0 {
		f.Skip = 0
	}
	f.Limit = repository.ClampLimit(f.Limit)
	return s.store.ListEvents(ctx, f)
}

// Workers lists the worker registry.
func (s *Service) Workers(ctx context.Context) ([]model.Worker, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ListWorkers(ctx)
}

// Workstations lists the workstation registry.
func (s *Service) Workstations(ctx context.Context) ([]model.Workstation, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.ListWorkstations(ctx)
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"tail":        s.accumulator.Tail.String(),
		"cache":       s.cache != nil,
	}

	if s.started {
		ctx := context.Background()
		stats["queueLength"] = s.queue.Len(ctx)
		stats["processed"] = s.pool.Processed()
		stats["recentKeys"] = s.recent.Size()
		if fp, err := s.store.Fingerprint(ctx, repository.ScopeFactory, ""); err == nil {
			stats["storedEvents"] = fp.Count
		}
	}

	return stats
}
