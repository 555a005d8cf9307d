// Package dedupe admits candidate events exactly once per identity key.
//
// Admission validates the candidate, checks that its worker and workstation
// are registered and then performs a single atomic insert-if-absent against
// the store. The store is the source of truth; the recent-key filter only
// short-circuits retransmissions that are already known to be stored.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/shiftmetrics/internal/adapters/repository"
	"github.com/okian/shiftmetrics/internal/domain/model"
)

const defaultMaxSize = 50000

// Deduper records recently seen identity keys.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Seen reports whether id is currently recorded without recording it.
	Seen(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen list.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps keys in a map. In bounded mode a ring of slots
// tracks insertion order and the oldest key is evicted first.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]int // id -> ring slot, -1 in unbounded mode
	ring    []string
	next    int
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]int)
	if d.maxSize > 0 {
		d.ring = make([]string, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	if d.maxSize <= 0 {
		d.seen[id] = -1
		d.size.Store(int64(len(d.seen)))
		return false
	}

	// Slots freed by Unrecord stay in the ring until overwritten, so only
	// evict the occupant if the map still points at this slot.
	old := d.ring[d.next]
	if slot, ok := d.seen[old]; ok && slot == d.next {
		delete(d.seen, old)
	}
	d.ring[d.next] = id
	d.seen[id] = d.next
	d.next = (d.next + 1) % d.maxSize
	d.size.Store(int64(len(d.seen)))
	return false
}

func (d *inMemoryDeduper) Seen(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

func (d *inMemoryDeduper) Unrecord(ctx context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.seen[id]
	if !ok {
		return
	}
	delete(d.seen, id)
	if slot >= 0 {
		d.ring[slot] = ""
	}
	d.size.Store(int64(len(d.seen)))
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

// Store is the persistence surface admission needs.
type Store interface {
	Worker(ctx context.Context, id string) (model.Worker, error)
	Workstation(ctx context.Context, id string) (model.Workstation, error)
	FindEvent(ctx context.Context, key model.Key) (model.Event, error)
	InsertIfAbsent(ctx context.Context, e model.Event) (model.Event, bool, error)
}

// Admitter turns candidate events into stored events.
type Admitter struct {
	store  Store
	recent Deduper
	now    func() time.Time
	newID  func() string
}

// NewAdmitter creates an Admitter over store.
func NewAdmitter(store Store, opts ...AdmitterOption) *Admitter {
	a := &Admitter{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Admit stores in unless an event with the same identity key exists.
// It returns the stored event and whether this call created it. A
// duplicate returns the originally stored record untouched.
func (a *Admitter) Admit(ctx context.Context, in model.EventInput) (model.Event, bool, error) {
	candidate, err := a.build(in)
	if err != nil {
		return model.Event{}, false, err
	}
	if err := a.checkReferences(ctx, candidate); err != nil {
		return model.Event{}, false, err
	}

	key := candidate.Key()
	id := key.String()
	if a.recent != nil && a.recent.Seen(ctx, id) {
		existing, err := a.store.FindEvent(ctx, key)
		switch {
		case err == nil:
			return existing, false, nil
		case errors.Is(err, repository.ErrNotFound):
			a.recent.Unrecord(ctx, id)
		default:
			return model.Event{}, false, fmt.Errorf("find event %s: %w", id, err)
		}
	}

	stored, created, err := a.store.InsertIfAbsent(ctx, candidate)
	if err != nil {
		return model.Event{}, false, fmt.Errorf("insert event %s: %w", id, err)
	}
	if a.recent != nil {
		a.recent.SeenAndRecord(ctx, id)
	}
	return stored, created, nil
}

// Validate checks the candidate's own fields without touching the store.
func Validate(in model.EventInput) error {
	if in.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrValidation)
	}
	if in.WorkerID == "" {
		return fmt.Errorf("%w: worker_id is required", ErrValidation)
	}
	if in.WorkstationID == "" {
		return fmt.Errorf("%w: workstation_id is required", ErrValidation)
	}
	if _, ok := model.ParseEventType(string(in.EventType)); !ok {
		return fmt.Errorf("%w: unknown event_type %q", ErrValidation, in.EventType)
	}
	if in.Confidence == nil {
		return fmt.Errorf("%w: confidence is required", ErrValidation)
	}
	if c := *in.Confidence; math.IsNaN(c) || c < 0 || c > 1 {
		return fmt.Errorf("%w: confidence %v outside [0, 1]", ErrValidation, c)
	}
	if c := in.CountOrDefault(); c < 1 {
		return fmt.Errorf("%w: count %d must be at least 1", ErrValidation, c)
	}
	return nil
}

func (a *Admitter) build(in model.EventInput) (model.Event, error) {
	if err := Validate(in); err != nil {
		return model.Event{}, err
	}
	et, _ := model.ParseEventType(string(in.EventType))
	return model.Event{
		ID:            a.newID(),
		Timestamp:     model.NormalizeTimestamp(in.Timestamp),
		WorkerID:      in.WorkerID,
		WorkstationID: in.WorkstationID,
		EventType:     et,
		Confidence:    *in.Confidence,
		Count:         in.CountOrDefault(),
		ReceivedAt:    model.NormalizeTimestamp(a.now()),
	}, nil
}

func (a *Admitter) checkReferences(ctx context.Context, e model.Event) error {
	if _, err := a.store.Worker(ctx, e.WorkerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: worker %s", ErrReference, e.WorkerID)
		}
		return fmt.Errorf("lookup worker %s: %w", e.WorkerID, err)
	}
	if _, err := a.store.Workstation(ctx, e.WorkstationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: workstation %s", ErrReference, e.WorkstationID)
		}
		return fmt.Errorf("lookup workstation %s: %w", e.WorkstationID, err)
	}
	return nil
}
