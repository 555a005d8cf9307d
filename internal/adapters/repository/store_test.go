package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/shiftmetrics/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 1, 29, 10, 0, 0, 0, time.UTC)

func event(id string, minutes int, worker, station string, et model.EventType) model.Event {
	return model.Event{
		ID:            id,
		Timestamp:     t0.Add(time.Duration(minutes) * time.Minute),
		WorkerID:      worker,
		WorkstationID: station,
		EventType:     et,
		Confidence:    0.9,
		Count:         1,
		ReceivedAt:    t0.Add(time.Duration(minutes)*time.Minute + time.Second),
	}
}

// storeFactories builds every driver that runs without external services.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store {
			return NewMemoryStore(context.Background())
		},
		"badger": func() Store {
			s, err := OpenBadger(context.Background(), "")
			if err != nil {
				t.Fatalf("open in-memory badger: %v", err)
			}
			return s
		},
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range storeFactories(t) {
		Convey(fmt.Sprintf("Given a %s store", name), t, func() {
			s := newStore()
			Reset(func() { _ = s.Close() })

			So(s.UpsertWorker(ctx, model.Worker{WorkerID: "W1", Name: "John Smith"}), ShouldBeNil)
			So(s.UpsertWorker(ctx, model.Worker{WorkerID: "W2", Name: "Sarah Johnson"}), ShouldBeNil)
			So(s.UpsertWorkstation(ctx, model.Workstation{StationID: "S1", Name: "Assembly Line A", StationType: "assembly"}), ShouldBeNil)

			Convey("When reading the registry", func() {
				w, err := s.Worker(ctx, "W1")
				So(err, ShouldBeNil)
				So(w.Name, ShouldEqual, "John Smith")

				_, err = s.Worker(ctx, "W9")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = s.Workstation(ctx, "S9")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)

				workers, err := s.ListWorkers(ctx)
				So(err, ShouldBeNil)
				So(workers, ShouldHaveLength, 2)
				So(workers[0].WorkerID, ShouldEqual, "W1")

				stations, err := s.ListWorkstations(ctx)
				So(err, ShouldBeNil)
				So(stations, ShouldResemble, []model.Workstation{{StationID: "S1", Name: "Assembly Line A", StationType: "assembly"}})
			})

			Convey("When the same fact is inserted twice", func() {
				first, created, err := s.InsertIfAbsent(ctx, event("a", 0, "W1", "S1", model.EventWorking))
				So(err, ShouldBeNil)
				So(created, ShouldBeTrue)
				So(first.Seq, ShouldBeGreaterThan, 0)

				again := event("b", 0, "W1", "S1", model.EventWorking)
				again.Confidence = 0.1
				second, created, err := s.InsertIfAbsent(ctx, again)

				Convey("Then the original record should come back unchanged", func() {
					So(err, ShouldBeNil)
					So(created, ShouldBeFalse)
					So(second.ID, ShouldEqual, "a")
					So(second.Confidence, ShouldEqual, 0.9)
					So(second.Seq, ShouldEqual, first.Seq)

					all, err := s.ListEvents(ctx, model.EventFilter{})
					So(err, ShouldBeNil)
					So(all, ShouldHaveLength, 1)
				})

				Convey("Then InsertEvent should report the duplicate", func() {
					_, err := s.InsertEvent(ctx, again)
					So(errors.Is(err, ErrDuplicate), ShouldBeTrue)
				})

				Convey("Then FindEvent should resolve the key from any zone", func() {
					k := again.Key()
					k.Timestamp = k.Timestamp.In(time.FixedZone("CET", 3600))
					found, err := s.FindEvent(ctx, k)
					So(err, ShouldBeNil)
					So(found.ID, ShouldEqual, "a")
					So(found.Timestamp.Equal(t0), ShouldBeTrue)
				})
			})

			Convey("When events land for several entities", func() {
				for _, e := range []model.Event{
					event("1", 30, "W1", "S1", model.EventIdle),
					event("2", 0, "W1", "S1", model.EventWorking),
					event("3", 10, "W2", "S1", model.EventWorking),
					event("4", 60, "W1", "S2", model.EventWorking),
				} {
					_, created, err := s.InsertIfAbsent(ctx, e)
					So(err, ShouldBeNil)
					So(created, ShouldBeTrue)
				}

				Convey("Then per-entity reads should be copies in insertion order", func() {
					w1, err := s.EventsForWorker(ctx, "W1")
					So(err, ShouldBeNil)
					So(w1, ShouldHaveLength, 3)
					So(w1[0].ID, ShouldEqual, "1")
					w1[0].WorkerID = "tampered"

					again, _ := s.EventsForWorker(ctx, "W1")
					So(again[0].WorkerID, ShouldEqual, "W1")

					s1, err := s.EventsForWorkstation(ctx, "S1")
					So(err, ShouldBeNil)
					So(s1, ShouldHaveLength, 3)
				})

				Convey("Then listings should be newest first and paged", func() {
					all, err := s.ListEvents(ctx, model.EventFilter{})
					So(err, ShouldBeNil)
					So(all, ShouldHaveLength, 4)
					So(all[0].ID, ShouldEqual, "4")
					So(all[3].ID, ShouldEqual, "2")

					paged, err := s.ListEvents(ctx, model.EventFilter{WorkerID: "W1", Skip: 1, Limit: 1})
					So(err, ShouldBeNil)
					So(paged, ShouldHaveLength, 1)
					So(paged[0].ID, ShouldEqual, "1")

					none, err := s.ListEvents(ctx, model.EventFilter{Skip: 10})
					So(err, ShouldBeNil)
					So(none, ShouldBeEmpty)

					byStation, err := s.ListEvents(ctx, model.EventFilter{WorkstationID: "S2"})
					So(err, ShouldBeNil)
					So(byStation, ShouldHaveLength, 1)
				})

				Convey("Then fingerprints should track count and latest receipt", func() {
					fp, err := s.Fingerprint(ctx, ScopeWorker, "W1")
					So(err, ShouldBeNil)
					So(fp.Count, ShouldEqual, 3)
					So(fp.LastReceivedAt.Equal(t0.Add(60*time.Minute+time.Second)), ShouldBeTrue)

					fp, err = s.Fingerprint(ctx, ScopeFactory, "")
					So(err, ShouldBeNil)
					So(fp.Count, ShouldEqual, 4)

					_, err = s.Fingerprint(ctx, Scope("team"), "x")
					So(errors.Is(err, ErrInvalidScope), ShouldBeTrue)
				})

				Convey("Then a late backfill should change the fingerprint", func() {
					before, _ := s.Fingerprint(ctx, ScopeWorker, "W2")
					late := event("5", -30, "W2", "S1", model.EventIdle)
					late.ReceivedAt = t0.Add(2 * time.Hour)
					_, _, err := s.InsertIfAbsent(ctx, late)
					So(err, ShouldBeNil)

					after, _ := s.Fingerprint(ctx, ScopeWorker, "W2")
					So(after, ShouldNotResemble, before)
				})
			})

			Convey("When many goroutines admit the same fact", func() {
				const n = 32
				var (
					wg      sync.WaitGroup
					mu      sync.Mutex
					created int
					ids     = map[string]bool{}
				)
				for i := 0; i < n; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						e := event(fmt.Sprintf("id-%d", i), 0, "W1", "S1", model.EventWorking)
						stored, ok, err := s.InsertIfAbsent(ctx, e)
						if err != nil {
							return
						}
						mu.Lock()
						defer mu.Unlock()
						if ok {
							created++
						}
						ids[stored.ID] = true
					}(i)
				}
				wg.Wait()

				Convey("Then exactly one row should be created", func() {
					So(created, ShouldEqual, 1)
					So(ids, ShouldHaveLength, 1)
					all, _ := s.ListEvents(ctx, model.EventFilter{})
					So(all, ShouldHaveLength, 1)
				})
			})

			Convey("When pinging an open store", func() {
				So(s.Ping(ctx), ShouldBeNil)
			})
		})
	}
}

func TestMemoryStoreClose(t *testing.T) {
	Convey("Given a closed memory store", t, func() {
		s := NewMemoryStore(context.Background(), WithMetricsUpdateInterval(time.Millisecond))
		So(s.Close(), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("Then writes and pings should fail", func() {
			_, _, err := s.InsertIfAbsent(context.Background(), event("x", 0, "W1", "S1", model.EventIdle))
			So(errors.Is(err, ErrStoreClosed), ShouldBeTrue)
			So(errors.Is(s.Ping(context.Background()), ErrStoreClosed), ShouldBeTrue)
			So(errors.Is(s.UpsertWorker(context.Background(), model.Worker{WorkerID: "W1"}), ErrStoreClosed), ShouldBeTrue)
		})
	})
}

func TestClampLimit(t *testing.T) {
	Convey("Given page size requests", t, func() {
		So(ClampLimit(0), ShouldEqual, DefaultListLimit)
		So(ClampLimit(-5), ShouldEqual, DefaultListLimit)
		So(ClampLimit(50), ShouldEqual, 50)
		So(ClampLimit(5000), ShouldEqual, MaxListLimit)
	})
}
