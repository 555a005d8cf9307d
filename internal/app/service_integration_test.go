package service_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/okian/shiftmetrics/internal/adapters/cache"
	eventqueue "github.com/okian/shiftmetrics/internal/adapters/mq/queue"
	service "github.com/okian/shiftmetrics/internal/app"
	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// countingKV is an in-memory cache backend that counts hits.
type countingKV struct {
	mu   sync.Mutex
	data map[string]string
	hits int
}

func (k *countingKV) Get(ctx context.Context, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	k.hits++
	return v, nil
}

func (k *countingKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[key] = value
	return nil
}

func count(n int) *int { return &n }

// scenarioA is W1 at S1: working 10:00, idle 10:30, working 11:00, with
// product counts of 3 at 10:05 and 2 at 10:45.
func scenarioA() []model.EventInput {
	p1 := in("W1", "S1", 5, model.EventProductCount)
	p1.Count = count(3)
	p2 := in("W1", "S1", 45, model.EventProductCount)
	p2.Count = count(2)
	return []model.EventInput{
		in("W1", "S1", 0, model.EventWorking),
		in("W1", "S1", 30, model.EventIdle),
		in("W1", "S1", 60, model.EventWorking),
		p1,
		p2,
	}
}

func TestServiceIntegration(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with full integration", t, func() {
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a shift arrives in shuffled order with retransmissions", func() {
			events := scenarioA()
			delivery := append(append([]model.EventInput{}, events...), events...)
			rand.New(rand.NewSource(7)).Shuffle(len(delivery), func(i, j int) {
				delivery[i], delivery[j] = delivery[j], delivery[i]
			})
			created := 0
			for _, e := range delivery {
				_, ok, err := svc.Ingest(ctx, "http", e)
				So(err, ShouldBeNil)
				if ok {
					created++
				}
			}

			Convey("Then each fact should be stored once", func() {
				So(created, ShouldEqual, len(events))
			})

			Convey("And worker metrics should match the ordered timeline", func() {
				m, err := svc.WorkerMetric(ctx, "W1", model.Window{})
				So(err, ShouldBeNil)
				So(m, ShouldResemble, model.WorkerMetric{
					WorkerID:               "W1",
					Name:                   "John Smith",
					TotalActiveTimeMinutes: 60,
					TotalIdleTimeMinutes:   30,
					UtilizationPercentage:  66.67,
					TotalUnitsProduced:     5,
					UnitsPerHour:           5,
				})
			})

			Convey("And workstation metrics should follow the same intervals", func() {
				m, err := svc.WorkstationMetric(ctx, "S1", model.Window{})
				So(err, ShouldBeNil)
				So(m.OccupancyTimeMinutes, ShouldEqual, 90)
				So(m.UtilizationPercentage, ShouldEqual, 66.67)
				So(m.TotalUnitsProduced, ShouldEqual, 5)

				all, err := svc.WorkstationMetrics(ctx, model.Window{})
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 2)
				So(all[1].OccupancyTimeMinutes, ShouldEqual, 0)
			})

			Convey("And the factory should only count active entities", func() {
				f, err := svc.FactoryMetrics(ctx, model.Window{})
				So(err, ShouldBeNil)
				So(f, ShouldResemble, model.FactoryMetric{
					TotalProductiveTimeMinutes:   60,
					TotalProductionCount:         5,
					AverageProductionRate:        5,
					AverageUtilizationPercentage: 66.67,
					TotalWorkers:                 1,
					TotalWorkstations:            1,
				})
			})

			Convey("And a query window should narrow the events", func() {
				w := model.Window{From: t0, To: t0.Add(30 * time.Minute)}
				m, err := svc.WorkerMetric(ctx, "W1", w)
				So(err, ShouldBeNil)
				So(m.TotalActiveTimeMinutes, ShouldEqual, 30)
				So(m.TotalIdleTimeMinutes, ShouldEqual, 0)
				So(m.TotalUnitsProduced, ShouldEqual, 3)
			})
		})

		Convey("When events arrive through the queue", func() {
			for i, e := range scenarioA() {
				So(svc.Enqueue(ctx, eventqueue.Message{Input: e, Source: fmt.Sprintf("mqtt-%d", i)}), ShouldBeNil)
			}
			bad := in("W9", "S1", 0, model.EventWorking)
			So(svc.Enqueue(ctx, eventqueue.Message{Input: bad, Source: "mqtt"}), ShouldBeNil)

			Convey("Then the workers should admit them asynchronously", func() {
				deadline := time.Now().Add(2 * time.Second)
				var stored []model.Event
				for time.Now().Before(deadline) {
					stored, _ = svc.Events(ctx, model.EventFilter{})
					if len(stored) == 5 {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				So(stored, ShouldHaveLength, 5)
			})
		})
	})
}

func TestServiceCache(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with a metric cache", t, func() {
		kv := &countingKV{data: map[string]string{}}
		svc := newService(service.WithCache(cache.New(kv, cache.WithLogger(logger.Nop()))))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		for _, e := range scenarioA() {
			_, _, err := svc.Ingest(ctx, "http", e)
			So(err, ShouldBeNil)
		}

		Convey("When the same metric is read twice", func() {
			first, err := svc.WorkerMetric(ctx, "W1", model.Window{})
			So(err, ShouldBeNil)
			second, err := svc.WorkerMetric(ctx, "W1", model.Window{})
			So(err, ShouldBeNil)

			Convey("Then the second read should be served from the cache", func() {
				So(second, ShouldResemble, first)
				So(kv.hits, ShouldEqual, 1)
			})
		})

		Convey("When a late event lands between reads", func() {
			before, err := svc.WorkerMetric(ctx, "W1", model.Window{})
			So(err, ShouldBeNil)
			late := in("W1", "S1", 15, model.EventProductCount)
			_, created, err := svc.Ingest(ctx, "http", late)
			So(err, ShouldBeNil)
			So(created, ShouldBeTrue)
			after, err := svc.WorkerMetric(ctx, "W1", model.Window{})
			So(err, ShouldBeNil)

			Convey("Then the stale snapshot should not be served", func() {
				So(before.TotalUnitsProduced, ShouldEqual, 5)
				So(after.TotalUnitsProduced, ShouldEqual, 6)
				So(kv.hits, ShouldEqual, 0)
			})
		})

		Convey("When the factory summary is read twice", func() {
			first, err := svc.FactoryMetrics(ctx, model.Window{})
			So(err, ShouldBeNil)
			second, err := svc.FactoryMetrics(ctx, model.Window{})
			So(err, ShouldBeNil)
			So(second, ShouldResemble, first)
			So(kv.hits, ShouldEqual, 1)
		})
	})
}

func TestServiceConcurrency(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with concurrent operations", t, func() {
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When many goroutines deliver the same shift while others read", func() {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				created int
			)
			for g := 0; g < 8; g++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					for _, e := range scenarioA() {
						_, ok, err := svc.Ingest(ctx, "http", e)
						if err == nil && ok {
							mu.Lock()
							created++
							mu.Unlock()
						}
					}
				}()
				go func() {
					defer wg.Done()
					_, _ = svc.FactoryMetrics(ctx, model.Window{})
					_, _ = svc.WorkerMetrics(ctx, model.Window{})
				}()
			}
			wg.Wait()

			Convey("Then exactly one delivery of each fact should create it", func() {
				So(created, ShouldEqual, 5)
				m, err := svc.WorkerMetric(ctx, "W1", model.Window{})
				So(err, ShouldBeNil)
				So(m.UtilizationPercentage, ShouldEqual, 66.67)
			})
		})
	})
}
