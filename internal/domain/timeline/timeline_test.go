package timeline_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/internal/domain/timeline"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2026, 1, 29, 10, 0, 0, 0, time.UTC)

func ev(minute int, et model.EventType, seq int64) model.Event {
	return model.Event{
		Seq:           seq,
		Timestamp:     base.Add(time.Duration(minute) * time.Minute),
		WorkerID:      "W1",
		WorkstationID: "S1",
		EventType:     et,
		Confidence:    0.9,
		Count:         1,
		ReceivedAt:    base.Add(2 * time.Hour).Add(time.Duration(seq) * time.Second),
	}
}

func TestOrdered(t *testing.T) {
	Convey("Given events delivered in reverse time order", t, func() {
		arrived := []model.Event{ev(30, model.EventIdle, 1), ev(0, model.EventWorking, 2)}

		Convey("When ordering them", func() {
			out := timeline.Ordered(arrived)

			Convey("Then they should follow their timestamps, not arrival", func() {
				So(out[0].EventType, ShouldEqual, model.EventWorking)
				So(out[1].EventType, ShouldEqual, model.EventIdle)
				So(timeline.IsOrdered(out), ShouldBeTrue)
			})

			Convey("And the input should not be mutated", func() {
				So(arrived[0].EventType, ShouldEqual, model.EventIdle)
				So(timeline.IsOrdered(arrived), ShouldBeFalse)
			})
		})
	})

	Convey("Given events sharing one timestamp", t, func() {
		a := ev(10, model.EventWorking, 5)
		b := ev(10, model.EventProductCount, 3)

		Convey("Then received order should break the tie", func() {
			out := timeline.Ordered([]model.Event{a, b})
			So(out[0].Seq, ShouldEqual, 3)
			So(out[1].Seq, ShouldEqual, 5)
		})
	})

	Convey("Given any permutation of a fixed set", t, func() {
		set := []model.Event{
			ev(0, model.EventWorking, 1),
			ev(5, model.EventProductCount, 2),
			ev(30, model.EventIdle, 3),
			ev(45, model.EventProductCount, 4),
			ev(60, model.EventWorking, 5),
			ev(60, model.EventAbsent, 6),
		}
		want := timeline.Ordered(set)
		rng := rand.New(rand.NewSource(7))

		Convey("Then ordering should always yield the same sequence", func() {
			for i := 0; i < 50; i++ {
				perm := make([]model.Event, len(set))
				for j, k := range rng.Perm(len(set)) {
					perm[j] = set[k]
				}
				So(timeline.Ordered(perm), ShouldResemble, want)
			}
		})
	})

	Convey("Given no events", t, func() {
		So(timeline.Ordered(nil), ShouldBeEmpty)
	})
}

func TestGroupByWorker(t *testing.T) {
	Convey("Given a station history with two workers", t, func() {
		a := ev(0, model.EventWorking, 1)
		b := ev(1, model.EventWorking, 2)
		b.WorkerID = "W2"
		c := ev(2, model.EventIdle, 3)

		groups := timeline.GroupByWorker([]model.Event{a, b, c})

		Convey("Then events should be split per worker", func() {
			So(groups, ShouldHaveLength, 2)
			So(groups["W1"], ShouldHaveLength, 2)
			So(groups["W2"], ShouldHaveLength, 1)
		})
	})
}
