// Package repository defines the event store interface, its errors and the
// memory, Postgres and Badger implementations.
package repository

import (
	"context"
	"time"

	"github.com/okian/shiftmetrics/internal/domain/model"
)

// Scope selects which side of an event a fingerprint is computed for.
type Scope string

// Fingerprint scopes.
const (
	ScopeWorker      Scope = "worker"
	ScopeWorkstation Scope = "workstation"
	ScopeFactory     Scope = "factory"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeWorker || s == ScopeWorkstation || s == ScopeFactory
}

func (s Scope) matches(id string, e model.Event) bool {
	switch s {
	case ScopeWorker:
		return e.WorkerID == id
	case ScopeWorkstation:
		return e.WorkstationID == id
	}
	return true
}

// Fingerprint changes whenever an event lands for an entity, including a late
// backfill that does not move the newest timestamp.
type Fingerprint struct {
	Count          int
	LastReceivedAt time.Time
}

// Registry is the read side of the worker and workstation registry.
type Registry interface {
	// Worker returns ErrNotFound if id is unknown.
	Worker(ctx context.Context, id string) (model.Worker, error)
	// Workstation returns ErrNotFound if id is unknown.
	Workstation(ctx context.Context, id string) (model.Workstation, error)
	ListWorkers(ctx context.Context) ([]model.Worker, error)
	ListWorkstations(ctx context.Context) ([]model.Workstation, error)
}

// Store provides read/write access to events and the entity registry.
// Every read returns a copy the caller may keep.
type Store interface {
	Registry

	UpsertWorker(ctx context.Context, w model.Worker) error
	UpsertWorkstation(ctx context.Context, s model.Workstation) error

	// FindEvent returns ErrNotFound if no event has the key.
	FindEvent(ctx context.Context, key model.Key) (model.Event, error)
	// InsertEvent stores e and returns ErrDuplicate if the key is taken.
	InsertEvent(ctx context.Context, e model.Event) (model.Event, error)
	// InsertIfAbsent atomically stores e unless its key is taken, in which case
	// the existing event is returned unchanged with created=false.
	InsertIfAbsent(ctx context.Context, e model.Event) (stored model.Event, created bool, err error)

	EventsForWorker(ctx context.Context, workerID string) ([]model.Event, error)
	EventsForWorkstation(ctx context.Context, stationID string) ([]model.Event, error)
	// ListEvents returns events newest first, filtered and paged.
	ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error)

	// Fingerprint summarizes the events of one entity. ScopeFactory ignores id.
	Fingerprint(ctx context.Context, scope Scope, id string) (Fingerprint, error)

	Ping(ctx context.Context) error
	Close() error
}
