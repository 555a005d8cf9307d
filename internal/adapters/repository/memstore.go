package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/pkg/metrics"
)

const memoryDriver = "memory"

// MemoryStore is an in-memory Store. Insert-if-absent runs under a single
// mutex, which makes it the reference implementation for the other drivers.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []model.Event
	byKey    map[string]int // key string -> index into events
	workers  map[string]model.Worker
	stations map[string]model.Workstation
	seq      int64
	closed   bool

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byKey:                 make(map[string]int),
		workers:               make(map[string]model.Worker),
		stations:              make(map[string]model.Workstation),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the metrics updater. Later writes fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	s.wg.Wait()
	return nil
}

// Ping reports whether the store accepts writes.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return ctx.Err()
}

// UpsertWorker adds or replaces a registry entry.
func (s *MemoryStore) UpsertWorker(ctx context.Context, w model.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.workers[w.WorkerID] = w
	return nil
}

// UpsertWorkstation adds or replaces a registry entry.
func (s *MemoryStore) UpsertWorkstation(ctx context.Context, st model.Workstation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.stations[st.StationID] = st
	return nil
}

// Worker looks up a worker by id.
func (s *MemoryStore) Worker(ctx context.Context, id string) (model.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	if !ok {
		return model.Worker{}, fmt.Errorf("worker %q: %w", id, ErrNotFound)
	}
	return w, nil
}

// Workstation looks up a workstation by id.
func (s *MemoryStore) Workstation(ctx context.Context, id string) (model.Workstation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[id]
	if !ok {
		return model.Workstation{}, fmt.Errorf("workstation %q: %w", id, ErrNotFound)
	}
	return st, nil
}

// ListWorkers returns every worker ordered by id.
func (s *MemoryStore) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	s.mu.RLock()
	out := make([]model.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Worker) int { return strings.Compare(a.WorkerID, b.WorkerID) })
	return out, nil
}

// ListWorkstations returns every workstation ordered by id.
func (s *MemoryStore) ListWorkstations(ctx context.Context) ([]model.Workstation, error) {
	s.mu.RLock()
	out := make([]model.Workstation, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Workstation) int { return strings.Compare(a.StationID, b.StationID) })
	return out, nil
}

// FindEvent returns the event stored under key.
func (s *MemoryStore) FindEvent(ctx context.Context, key model.Key) (model.Event, error) {
	start := time.Now()
	defer observe(memoryDriver, "find", start)

	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byKey[key.String()]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return s.events[i], nil
}

// InsertEvent stores e or fails with ErrDuplicate.
func (s *MemoryStore) InsertEvent(ctx context.Context, e model.Event) (model.Event, error) {
	stored, created, err := s.InsertIfAbsent(ctx, e)
	if err != nil {
		return model.Event{}, err
	}
	if !created {
		return stored, ErrDuplicate
	}
	return stored, nil
}

// InsertIfAbsent stores e unless an event with the same key exists.
func (s *MemoryStore) InsertIfAbsent(ctx context.Context, e model.Event) (model.Event, bool, error) {
	start := time.Now()
	defer observe(memoryDriver, "insert_if_absent", start)

	e.Timestamp = model.NormalizeTimestamp(e.Timestamp)
	k := e.Key().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.Event{}, false, ErrStoreClosed
	}
	if i, ok := s.byKey[k]; ok {
		return s.events[i], false, nil
	}
	s.seq++
	e.Seq = s.seq
	s.byKey[k] = len(s.events)
	s.events = append(s.events, e)
	return e, true, nil
}

// EventsForWorker returns a copy of the worker's events in insertion order.
func (s *MemoryStore) EventsForWorker(ctx context.Context, workerID string) ([]model.Event, error) {
	return s.collect(func(e model.Event) bool { return e.WorkerID == workerID }), nil
}

// EventsForWorkstation returns a copy of the station's events in insertion order.
func (s *MemoryStore) EventsForWorkstation(ctx context.Context, stationID string) ([]model.Event, error) {
	return s.collect(func(e model.Event) bool { return e.WorkstationID == stationID }), nil
}

// ListEvents returns events newest first.
func (s *MemoryStore) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	start := time.Now()
	defer observe(memoryDriver, "list", start)

	s.mu.RLock()
	snapshot := slices.Clone(s.events)
	s.mu.RUnlock()
	return page(snapshot, f), nil
}

// Fingerprint summarizes one entity's events.
func (s *MemoryStore) Fingerprint(ctx context.Context, scope Scope, id string) (Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fingerprintOf(s.events, scope, id)
}

// Count returns the number of stored events.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *MemoryStore) collect(keep func(model.Event) bool) []model.Event {
	start := time.Now()
	defer observe(memoryDriver, "scan", start)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, 0)
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// startMetricsUpdater publishes the event count until Close or ctx is done.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateStoredEvents(memoryDriver, s.Count())
			}
		}
	}()
}

func observe(driver, op string, start time.Time) {
	metrics.RecordStoreLatency(driver, op, float64(time.Since(start).Microseconds())/1000)
}
