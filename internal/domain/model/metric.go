package model

import "time"

// WorkerMetric is the published per-worker read model.
type WorkerMetric struct {
	WorkerID               string  `json:"worker_id"`
	Name                   string  `json:"name"`
	TotalActiveTimeMinutes float64 `json:"total_active_time_minutes"`
	TotalIdleTimeMinutes   float64 `json:"total_idle_time_minutes"`
	UtilizationPercentage  float64 `json:"utilization_percentage"`
	TotalUnitsProduced     int     `json:"total_units_produced"`
	UnitsPerHour           float64 `json:"units_per_hour"`
}

// WorkstationMetric is the published per-station read model.
type WorkstationMetric struct {
	StationID             string  `json:"station_id"`
	Name                  string  `json:"name"`
	OccupancyTimeMinutes  float64 `json:"occupancy_time_minutes"`
	UtilizationPercentage float64 `json:"utilization_percentage"`
	TotalUnitsProduced    int     `json:"total_units_produced"`
	ThroughputRate        float64 `json:"throughput_rate"`
}

// FactoryMetric is the published factory-wide read model.
type FactoryMetric struct {
	TotalProductiveTimeMinutes   float64 `json:"total_productive_time_minutes"`
	TotalProductionCount         int     `json:"total_production_count"`
	AverageProductionRate        float64 `json:"average_production_rate"`
	AverageUtilizationPercentage float64 `json:"average_utilization_percentage"`
	TotalWorkers                 int     `json:"total_workers"`
	TotalWorkstations            int     `json:"total_workstations"`
}

// Window bounds a metrics query to [From, To). Zero bounds are open.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// IsZero reports whether the window is unbounded.
func (w Window) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

// Filter returns the events inside the window. The input is not modified.
func (w Window) Filter(events []Event) []Event {
	if w.IsZero() {
		return events
	}
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if w.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out
}
