// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the closed set of event kinds an edge sensor can emit.
type EventType string

// Event kinds. Working, Idle and Absent are states; ProductCount is a production fact.
const (
	EventWorking      EventType = "working"
	EventIdle         EventType = "idle"
	EventAbsent       EventType = "absent"
	EventProductCount EventType = "product_count"
)

// EventTypes lists every accepted event type.
var EventTypes = []EventType{EventWorking, EventIdle, EventAbsent, EventProductCount}

// Valid reports whether t is in the closed set.
func (t EventType) Valid() bool {
	switch t {
	case EventWorking, EventIdle, EventAbsent, EventProductCount:
		return true
	}
	return false
}

// IsState reports whether t opens a state interval.
func (t EventType) IsState() bool {
	return t == EventWorking || t == EventIdle || t == EventAbsent
}

// ParseEventType normalizes s and returns the matching type.
func ParseEventType(s string) (EventType, bool) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// DefaultCount is applied when a product_count event arrives without a count.
const DefaultCount = 1

// NormalizeTimestamp maps t to the canonical form used in identity keys:
// UTC with microsecond precision, which every store can round-trip.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Key is the identity of an event. Two events with equal keys are the same fact.
type Key struct {
	Timestamp     time.Time
	WorkerID      string
	WorkstationID string
	EventType     EventType
}

// String renders the key in a stable, sortable form.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%s",
		NormalizeTimestamp(k.Timestamp).Format("2006-01-02T15:04:05.000000Z"),
		k.WorkerID, k.WorkstationID, k.EventType)
}

// Event is a stored, immutable fact emitted by an edge sensor.
type Event struct {
	ID            string    `json:"id" msgpack:"id"`
	Seq           int64     `json:"-" msgpack:"seq"`
	Timestamp     time.Time `json:"timestamp" msgpack:"timestamp"`
	WorkerID      string    `json:"worker_id" msgpack:"worker_id"`
	WorkstationID string    `json:"workstation_id" msgpack:"workstation_id"`
	EventType     EventType `json:"event_type" msgpack:"event_type"`
	Confidence    float64   `json:"confidence" msgpack:"confidence"`
	Count         int       `json:"count" msgpack:"count"`
	ReceivedAt    time.Time `json:"received_at" msgpack:"received_at"`
}

// Key returns the event's identity key.
func (e Event) Key() Key {
	return Key{
		Timestamp:     e.Timestamp,
		WorkerID:      e.WorkerID,
		WorkstationID: e.WorkstationID,
		EventType:     e.EventType,
	}
}

// EventInput is a candidate event before admission.
// Confidence is required; nil means the field was absent. Count is optional;
// nil means DefaultCount.
type EventInput struct {
	Timestamp     time.Time `json:"timestamp"`
	WorkerID      string    `json:"worker_id"`
	WorkstationID string    `json:"workstation_id"`
	EventType     EventType `json:"event_type"`
	Confidence    *float64  `json:"confidence"`
	Count         *int      `json:"count,omitempty"`
}

// Ptr returns a pointer to v, for filling the optional EventInput fields.
func Ptr[T any](v T) *T {
	return &v
}

// CountOrDefault resolves the optional count.
func (in EventInput) CountOrDefault() int {
	if in.Count == nil {
		return DefaultCount
	}
	return *in.Count
}

// EventFilter narrows event listings.
type EventFilter struct {
	WorkerID      string
	WorkstationID string
	Skip          int
	Limit         int // 0 means no limit
}
