package repository

import (
	"slices"
	"strings"

	"github.com/okian/shiftmetrics/internal/domain/model"
)

// Listing bounds shared by every store.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ClampLimit maps a requested page size onto [1, MaxListLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}

func matches(f model.EventFilter, e model.Event) bool {
	if f.WorkerID != "" && e.WorkerID != f.WorkerID {
		return false
	}
	if f.WorkstationID != "" && e.WorkstationID != f.WorkstationID {
		return false
	}
	return true
}

// newestFirst orders events by timestamp desc, then insertion desc.
func newestFirst(a, b model.Event) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	if a.Seq != b.Seq {
		if b.Seq < a.Seq {
			return -1
		}
		return 1
	}
	return strings.Compare(b.ID, a.ID)
}

// page filters, orders and slices events in memory. Used by the stores that
// cannot push the query down.
func page(events []model.Event, f model.EventFilter) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if matches(f, e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, newestFirst)

	skip := max(f.Skip, 0)
	if skip >= len(out) {
		return []model.Event{}
	}
	out = out[skip:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

// fingerprintOf scans events for the entity selected by scope and id.
func fingerprintOf(events []model.Event, scope Scope, id string) (Fingerprint, error) {
	if !scope.Valid() {
		return Fingerprint{}, ErrInvalidScope
	}
	var fp Fingerprint
	for _, e := range events {
		if !scope.matches(id, e) {
			continue
		}
		fp.Count++
		if e.ReceivedAt.After(fp.LastReceivedAt) {
			fp.LastReceivedAt = e.ReceivedAt
		}
	}
	return fp, nil
}
