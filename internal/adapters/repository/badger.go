package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/pkg/logger"
)

const badgerDriver = "badger"

// Key prefixes.
const (
	eventPrefix       = "event/"
	workerPrefix      = "worker/"
	workstationPrefix = "workstation/"
	seqKey            = "seq/events"
)

// BadgerStore is an embedded Store. Events are msgpack values under their
// identity key; insert-if-absent is a read-then-write transaction retried
// when badger reports a conflict.
type BadgerStore struct {
	db         *badger.DB
	seq        *badger.Sequence
	log        logger.Logger
	retries    int
	gcInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens the database at path. An empty path keeps everything in memory.
func OpenBadger(ctx context.Context, path string, opts ...BadgerOption) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR)
	if path == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", path, err)
	}
	s, err := NewBadgerStore(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewBadgerStore takes ownership of db; Close closes it.
func NewBadgerStore(ctx context.Context, db *badger.DB, opts ...BadgerOption) (*BadgerStore, error) {
	s := &BadgerStore{
		db:         db,
		log:        logger.Nop(),
		retries:    8,
		gcInterval: 10 * time.Minute,
		stopChan:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	seq, err := db.GetSequence([]byte(seqKey), 128)
	if err != nil {
		return nil, fmt.Errorf("event sequence: %w", err)
	}
	s.seq = seq

	if s.gcInterval > 0 && !db.Opts().InMemory {
		s.startValueLogGC(ctx)
	}
	return s, nil
}

// Close stops background GC, releases the sequence lease and closes the database.
func (s *BadgerStore) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		if rerr := s.seq.Release(); rerr != nil {
			s.log.Warn(context.Background(), "release event sequence", logger.Error(rerr))
		}
		err = s.db.Close()
	})
	return err
}

// Ping reports whether the database is open.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return ErrStoreClosed
	}
	return ctx.Err()
}

// UpsertWorker adds or replaces a registry entry.
func (s *BadgerStore) UpsertWorker(ctx context.Context, w model.Worker) error {
	return s.put(workerPrefix+w.WorkerID, w)
}

// UpsertWorkstation adds or replaces a registry entry.
func (s *BadgerStore) UpsertWorkstation(ctx context.Context, st model.Workstation) error {
	return s.put(workstationPrefix+st.StationID, st)
}

// Worker looks up a worker by id.
func (s *BadgerStore) Worker(ctx context.Context, id string) (model.Worker, error) {
	var w model.Worker
	if err := s.get(workerPrefix+id, &w); err != nil {
		return model.Worker{}, fmt.Errorf("worker %q: %w", id, err)
	}
	return w, nil
}

// Workstation looks up a workstation by id.
func (s *BadgerStore) Workstation(ctx context.Context, id string) (model.Workstation, error) {
	var st model.Workstation
	if err := s.get(workstationPrefix+id, &st); err != nil {
		return model.Workstation{}, fmt.Errorf("workstation %q: %w", id, err)
	}
	return st, nil
}

// ListWorkers returns every worker ordered by id.
func (s *BadgerStore) ListWorkers(ctx context.Context) ([]model.Worker, error) {
	out := make([]model.Worker, 0)
	err := iterate(s.db, workerPrefix, func(val []byte) error {
		var w model.Worker
		if err := msgpack.Unmarshal(val, &w); err != nil {
			return err
		}
		out = append(out, w)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return out, nil
}

// ListWorkstations returns every workstation ordered by id.
func (s *BadgerStore) ListWorkstations(ctx context.Context) ([]model.Workstation, error) {
	out := make([]model.Workstation, 0)
	err := iterate(s.db, workstationPrefix, func(val []byte) error {
		var st model.Workstation
		if err := msgpack.Unmarshal(val, &st); err != nil {
			return err
		}
		out = append(out, st)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list workstations: %w", err)
	}
	return out, nil
}

// FindEvent returns the event stored under key.
func (s *BadgerStore) FindEvent(ctx context.Context, key model.Key) (model.Event, error) {
	start := time.Now()
	defer observe(badgerDriver, "find", start)

	var e model.Event
	if err := s.get(eventPrefix+key.String(), &e); err != nil {
		return model.Event{}, err
	}
	return normalizeDecoded(e), nil
}

// InsertEvent stores e or fails with ErrDuplicate.
func (s *BadgerStore) InsertEvent(ctx context.Context, e model.Event) (model.Event, error) {
	stored, created, err := s.InsertIfAbsent(ctx, e)
	if err != nil {
		return model.Event{}, err
	}
	if !created {
		return stored, ErrDuplicate
	}
	return stored, nil
}

// InsertIfAbsent stores e unless its key is taken. Two transactions racing on
// the same key conflict at commit; the loser retries and finds the winner's row.
func (s *BadgerStore) InsertIfAbsent(ctx context.Context, e model.Event) (model.Event, bool, error) {
	start := time.Now()
	defer observe(badgerDriver, "insert_if_absent", start)

	e.Timestamp = model.NormalizeTimestamp(e.Timestamp)
	k := []byte(eventPrefix + e.Key().String())

	for attempt := 0; ; attempt++ {
		var (
			stored  model.Event
			created bool
		)
		err := s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(k)
			switch {
			case err == nil:
				return item.Value(func(val []byte) error {
					return msgpack.Unmarshal(val, &stored)
				})
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}

			n, err := s.seq.Next()
			if err != nil {
				return fmt.Errorf("next sequence: %w", err)
			}
			stored = e
			stored.Seq = int64(n) + 1
			buf, err := msgpack.Marshal(stored)
			if err != nil {
				return fmt.Errorf("marshal event: %w", err)
			}
			created = true
			return txn.Set(k, buf)
		})
		if err == nil {
			return normalizeDecoded(stored), created, nil
		}
		if !errors.Is(err, badger.ErrConflict) || attempt >= s.retries {
			return model.Event{}, false, fmt.Errorf("insert event: %w", err)
		}
		s.log.Debug(ctx, "insert conflict, retrying",
			logger.String("key", string(k)), logger.Int("attempt", attempt+1))
		if err := ctx.Err(); err != nil {
			return model.Event{}, false, err
		}
	}
}

// EventsForWorker returns the worker's events in insertion order.
func (s *BadgerStore) EventsForWorker(ctx context.Context, workerID string) ([]model.Event, error) {
	return s.listEvents(func(e model.Event) bool { return e.WorkerID == workerID })
}

// EventsForWorkstation returns the station's events in insertion order.
func (s *BadgerStore) EventsForWorkstation(ctx context.Context, stationID string) ([]model.Event, error) {
	return s.listEvents(func(e model.Event) bool { return e.WorkstationID == stationID })
}

// ListEvents returns events newest first.
func (s *BadgerStore) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	events, err := s.listEvents(nil)
	if err != nil {
		return nil, err
	}
	return page(events, f), nil
}

// Fingerprint summarizes one entity's events.
func (s *BadgerStore) Fingerprint(ctx context.Context, scope Scope, id string) (Fingerprint, error) {
	if !scope.Valid() {
		return Fingerprint{}, ErrInvalidScope
	}
	events, err := s.listEvents(func(e model.Event) bool { return scope.matches(id, e) })
	if err != nil {
		return Fingerprint{}, err
	}
	return fingerprintOf(events, scope, id)
}

// listEvents scans the event prefix, keeping what filter accepts, and
// returns the result in insertion order.
func (s *BadgerStore) listEvents(filter func(model.Event) bool) ([]model.Event, error) {
	start := time.Now()
	defer observe(badgerDriver, "scan", start)

	out := make([]model.Event, 0)
	err := iterate(s.db, eventPrefix, func(val []byte) error {
		var e model.Event
		if err := msgpack.Unmarshal(val, &e); err != nil {
			return err
		}
		if filter != nil && !filter(e) {
			return nil
		}
		out = append(out, normalizeDecoded(e))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	slices.SortFunc(out, func(a, b model.Event) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *BadgerStore) put(key string, value any) error {
	buf, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), buf)
	})
}

func (s *BadgerStore) get(key string, dst any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, dst)
		})
	})
}

// startValueLogGC periodically reclaims value log space until Close or ctx is done.
func (s *BadgerStore) startValueLogGC(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				// Rewrites one file per call; ErrNoRewrite means nothing to reclaim.
				for s.db.RunValueLogGC(0.5) == nil {
				}
			}
		}
	}()
}

func iterate(db *badger.DB, prefix string, fn func(val []byte) error) error {
	p := []byte(prefix)
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// normalizeDecoded moves msgpack-decoded times back to UTC.
func normalizeDecoded(e model.Event) model.Event {
	e.Timestamp = e.Timestamp.UTC()
	e.ReceivedAt = e.ReceivedAt.UTC()
	return e
}
