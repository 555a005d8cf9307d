// Package simulator replays a synthetic factory shift against a running
// shiftmetrics service and checks that the service counted it correctly.
package simulator

import "time"

// Config holds configuration for one simulated shift.
type Config struct {
	BaseURL     string        // Base URL of the service
	ShiftStart  time.Time     // First state event of every worker
	ShiftLength time.Duration // Span each worker's states cover
	WorkerIDs   []string      // Workers that emit events
	StationIDs  []string      // Stations workers are assigned to
	Duplicates  float64       // Fraction of events delivered a second time
	Concurrency int           // Number of concurrent senders
	Timeout     time.Duration // HTTP request timeout
	Seed        int64         // Random seed; equal seeds replay the same shift
	OutputFile  string        // Optional JSON dump of the generated events
}

// Stats holds the outcome of a run.
type Stats struct {
	EventsGenerated int
	Deliveries      int
	Created         int
	Duplicate       int
	Failed          int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
