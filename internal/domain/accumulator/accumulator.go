// Package accumulator converts an entity's discrete state events into time
// intervals.
//
// A single interval is open at any time. A state event at T closes the open
// interval at T and opens a new one. Production events are facts, not states:
// they are summed and never touch the open interval. When the history ends the
// open interval is given the configured tail duration, so the last known
// state still contributes time.
package accumulator

import (
	"time"

	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/internal/domain/timeline"
)

// DefaultTail is the length credited to the final open interval.
const DefaultTail = 30 * time.Minute

// Config carries the tunables of the state machine.
type Config struct {
	// Tail is the duration given to the final, otherwise unbounded interval.
	// It applies in full however long the history is.
	Tail time.Duration
}

// DefaultConfig returns a 30 minute tail.
func DefaultConfig() Config {
	return Config{Tail: DefaultTail}
}

// Interval is a contiguous span spent in one state.
type Interval struct {
	State    model.EventType
	Start    time.Time
	Duration time.Duration
	// Tail marks the final interval whose length came from Config.Tail.
	Tail bool
}

// Totals is the accumulated output for one entity.
type Totals struct {
	durations map[model.EventType]time.Duration

	// Units is the sum of product_count counts.
	Units int
	// Intervals lists every closed interval in order, including zero-length ones.
	Intervals []Interval
	// Events is the number of events consumed, state or not.
	Events int
}

// Duration returns the time accumulated in state.
func (t Totals) Duration(state model.EventType) time.Duration {
	return t.durations[state]
}

// Seconds returns the time accumulated in state, in seconds.
func (t Totals) Seconds(state model.EventType) float64 {
	return t.durations[state].Seconds()
}

// Add folds other into t, as when summing per-worker totals for a station.
func (t Totals) Add(other Totals) Totals {
	out := Totals{
		durations: make(map[model.EventType]time.Duration, len(t.durations)+len(other.durations)),
		Units:     t.Units + other.Units,
		Events:    t.Events + other.Events,
	}
	for s, d := range t.durations {
		out.durations[s] += d
	}
	for s, d := range other.durations {
		out.durations[s] += d
	}
	out.Intervals = append(append(out.Intervals, t.Intervals...), other.Intervals...)
	return out
}

// Accumulate walks one entity's history and returns its totals. Events are
// ordered first, so callers may pass them in arrival order.
func (c Config) Accumulate(events []model.Event) Totals {
	if !timeline.IsOrdered(events) {
		events = timeline.Ordered(events)
	}

	totals := Totals{
		durations: make(map[model.EventType]time.Duration, 3),
		Events:    len(events),
	}

	var (
		open  bool
		state model.EventType
		start time.Time
	)

	closeAt := func(end time.Time) {
		d := end.Sub(start)
		if d < 0 {
			d = 0
		}
		totals.durations[state] += d
		totals.Intervals = append(totals.Intervals, Interval{State: state, Start: start, Duration: d})
	}

	for _, e := range events {
		switch {
		case e.EventType == model.EventProductCount:
			totals.Units += e.Count
		case e.EventType.IsState():
			if open {
				closeAt(e.Timestamp)
			}
			open, state, start = true, e.EventType, e.Timestamp
		}
	}

	if open {
		tail := c.tail()
		totals.durations[state] += tail
		totals.Intervals = append(totals.Intervals, Interval{State: state, Start: start, Duration: tail, Tail: true})
	}
	return totals
}

func (c Config) tail() time.Duration {
	if c.Tail < 0 {
		return 0
	}
	return c.Tail
}
