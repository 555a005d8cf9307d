// Package timeline orders an entity's event history chronologically.
//
// Sorting is what makes metric computation independent of arrival order:
// events buffered at the edge and flushed late land where their timestamp
// says they belong.
package timeline

import (
	"slices"

	"github.com/okian/shiftmetrics/internal/domain/model"
)

// Ordered returns a copy of events sorted ascending by timestamp. Ties are
// broken by received_at, then by store sequence, then by identity key, so the
// result is deterministic for any permutation of the same set.
func Ordered(events []model.Event) []model.Event {
	out := slices.Clone(events)
	slices.SortStableFunc(out, compare)
	return out
}

// IsOrdered reports whether events are already in Ordered order.
func IsOrdered(events []model.Event) bool {
	return slices.IsSortedFunc(events, compare)
}

func compare(a, b model.Event) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := a.ReceivedAt.Compare(b.ReceivedAt); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	switch ka, kb := a.Key().String(), b.Key().String(); {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	}
	return 0
}

// GroupByWorker splits events per worker id, preserving relative order.
func GroupByWorker(events []model.Event) map[string][]model.Event {
	out := make(map[string][]model.Event)
	for _, e := range events {
		out[e.WorkerID] = append(out[e.WorkerID], e)
	}
	return out
}
