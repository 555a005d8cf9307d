package accumulator_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/okian/shiftmetrics/internal/domain/accumulator"
	"github.com/okian/shiftmetrics/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 1, 29, 10, 0, 0, 0, time.UTC)

func at(minutes int, et model.EventType) model.Event {
	return model.Event{
		Timestamp:     t0.Add(time.Duration(minutes) * time.Minute),
		WorkerID:      "W1",
		WorkstationID: "S1",
		EventType:     et,
		Confidence:    0.95,
		Count:         1,
	}
}

func units(minutes, n int) model.Event {
	e := at(minutes, model.EventProductCount)
	e.Count = n
	return e
}

func TestAccumulate(t *testing.T) {
	cfg := accumulator.DefaultConfig()

	Convey("Given working@10:00, idle@10:30, working@11:00 with a 30 minute tail", t, func() {
		totals := cfg.Accumulate([]model.Event{
			at(0, model.EventWorking),
			at(30, model.EventIdle),
			at(60, model.EventWorking),
		})

		Convey("Then working should total 60 minutes and idle 30", func() {
			So(totals.Duration(model.EventWorking), ShouldEqual, 60*time.Minute)
			So(totals.Duration(model.EventIdle), ShouldEqual, 30*time.Minute)
			So(totals.Seconds(model.EventWorking), ShouldEqual, 3600)
		})

		Convey("And the last interval should be the tail", func() {
			So(totals.Intervals, ShouldHaveLength, 3)
			last := totals.Intervals[2]
			So(last.Tail, ShouldBeTrue)
			So(last.State, ShouldEqual, model.EventWorking)
			So(last.Duration, ShouldEqual, 30*time.Minute)
		})
	})

	Convey("Given product_count events inside the working window", t, func() {
		totals := cfg.Accumulate([]model.Event{
			at(0, model.EventWorking),
			units(5, 3),
			at(30, model.EventIdle),
			units(45, 2),
			at(60, model.EventWorking),
		})

		Convey("Then they should be summed without splitting intervals", func() {
			So(totals.Units, ShouldEqual, 5)
			So(totals.Intervals, ShouldHaveLength, 3)
			So(totals.Duration(model.EventWorking), ShouldEqual, 60*time.Minute)
			So(totals.Duration(model.EventIdle), ShouldEqual, 30*time.Minute)
			So(totals.Events, ShouldEqual, 5)
		})
	})

	Convey("Given an entity with zero events", t, func() {
		totals := cfg.Accumulate(nil)

		Convey("Then every duration should be zero", func() {
			for _, et := range model.EventTypes {
				So(totals.Duration(et), ShouldEqual, 0)
			}
			So(totals.Units, ShouldEqual, 0)
			So(totals.Intervals, ShouldBeEmpty)
		})
	})

	Convey("Given a single state event", t, func() {
		totals := cfg.Accumulate([]model.Event{at(0, model.EventIdle)})

		Convey("Then its duration should equal the tail", func() {
			So(totals.Duration(model.EventIdle), ShouldEqual, accumulator.DefaultTail)
		})
	})

	Convey("Given only production events", t, func() {
		totals := cfg.Accumulate([]model.Event{units(0, 4), units(10, 1)})

		Convey("Then no interval should open", func() {
			So(totals.Intervals, ShouldBeEmpty)
			So(totals.Units, ShouldEqual, 5)
		})
	})

	Convey("Given two consecutive events of the same type", t, func() {
		totals := cfg.Accumulate([]model.Event{
			at(0, model.EventWorking),
			at(0, model.EventWorking),
			at(20, model.EventIdle),
		})

		Convey("Then a zero-length interval should be recorded, not merged", func() {
			So(totals.Intervals, ShouldHaveLength, 3)
			So(totals.Intervals[0].Duration, ShouldEqual, 0)
			So(totals.Intervals[1].Duration, ShouldEqual, 20*time.Minute)
			So(totals.Duration(model.EventWorking), ShouldEqual, 20*time.Minute)
		})
	})

	Convey("Given absent intervals", t, func() {
		totals := cfg.Accumulate([]model.Event{
			at(0, model.EventAbsent),
			at(15, model.EventWorking),
		})

		Convey("Then absence should be accumulated on its own", func() {
			So(totals.Duration(model.EventAbsent), ShouldEqual, 15*time.Minute)
			So(totals.Duration(model.EventWorking), ShouldEqual, 30*time.Minute)
		})
	})
}

func TestTailTuning(t *testing.T) {
	Convey("Given a custom tail", t, func() {
		cfg := accumulator.Config{Tail: 5 * time.Minute}
		totals := cfg.Accumulate([]model.Event{at(0, model.EventWorking)})
		So(totals.Duration(model.EventWorking), ShouldEqual, 5*time.Minute)
	})

	Convey("Given a history spanning a full shift", t, func() {
		cfg := accumulator.DefaultConfig()
		totals := cfg.Accumulate([]model.Event{
			at(0, model.EventWorking),
			at(8*60-1, model.EventIdle),
		})

		Convey("Then the last state should still get the whole tail", func() {
			So(totals.Duration(model.EventWorking), ShouldEqual, 479*time.Minute)
			So(totals.Duration(model.EventIdle), ShouldEqual, accumulator.DefaultTail)
		})
	})

	Convey("Given a history spanning several days", t, func() {
		cfg := accumulator.DefaultConfig()
		totals := cfg.Accumulate([]model.Event{
			at(0, model.EventWorking),
			at(8*60, model.EventAbsent),
			at(24*60, model.EventWorking),
		})

		Convey("Then the final interval should be the tail, not zero", func() {
			last := totals.Intervals[len(totals.Intervals)-1]
			So(last.Tail, ShouldBeTrue)
			So(last.State, ShouldEqual, model.EventWorking)
			So(last.Duration, ShouldEqual, accumulator.DefaultTail)
			So(totals.Duration(model.EventAbsent), ShouldEqual, 16*time.Hour)
			So(totals.Duration(model.EventWorking), ShouldEqual, 8*time.Hour+accumulator.DefaultTail)
		})
	})

	Convey("Given a negative tail", t, func() {
		cfg := accumulator.Config{Tail: -time.Minute}
		totals := cfg.Accumulate([]model.Event{at(0, model.EventWorking)})
		So(totals.Duration(model.EventWorking), ShouldEqual, 0)
	})
}

func TestOrderInvariance(t *testing.T) {
	Convey("Given a fixed event set in many arrival orders", t, func() {
		cfg := accumulator.DefaultConfig()
		set := []model.Event{
			at(0, model.EventWorking),
			units(5, 3),
			at(30, model.EventIdle),
			units(45, 2),
			at(60, model.EventWorking),
			at(75, model.EventAbsent),
			at(80, model.EventWorking),
		}
		want := cfg.Accumulate(set)
		rng := rand.New(rand.NewSource(42))

		Convey("Then totals should never change", func() {
			for i := 0; i < 100; i++ {
				perm := make([]model.Event, len(set))
				for j, k := range rng.Perm(len(set)) {
					perm[j] = set[k]
				}
				got := cfg.Accumulate(perm)
				for _, et := range model.EventTypes {
					So(got.Duration(et), ShouldEqual, want.Duration(et))
					So(got.Duration(et), ShouldBeGreaterThanOrEqualTo, 0)
				}
				So(got.Units, ShouldEqual, want.Units)
			}
		})
	})
}

func TestTotalsAdd(t *testing.T) {
	Convey("Given totals of two workers at one station", t, func() {
		cfg := accumulator.DefaultConfig()
		a := cfg.Accumulate([]model.Event{at(0, model.EventWorking), units(10, 2)})
		b := cfg.Accumulate([]model.Event{at(0, model.EventIdle), at(20, model.EventWorking)})

		sum := accumulator.Totals{}.Add(a).Add(b)

		Convey("Then durations, units and intervals should add up", func() {
			So(sum.Duration(model.EventWorking), ShouldEqual, 60*time.Minute)
			So(sum.Duration(model.EventIdle), ShouldEqual, 20*time.Minute)
			So(sum.Units, ShouldEqual, 2)
			So(sum.Intervals, ShouldHaveLength, 3)
			So(sum.Events, ShouldEqual, 4)
		})
	})
}
