// Package productivity turns accumulated intervals into worker, workstation
// and factory metrics.
//
// Every function here is pure: results depend only on the events passed in.
// Figures stay unrounded until Metric() renders the published shape.
package productivity

import (
	"math"
	"time"

	"github.com/okian/shiftmetrics/internal/domain/accumulator"
	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/internal/domain/timeline"
)

// WorkerResult holds a worker's unrounded figures.
type WorkerResult struct {
	Worker model.Worker
	Active time.Duration
	Idle   time.Duration
	Units  int
	Events int
}

// Utilization is 100*active/(active+idle), or 0 with no occupied time.
func (r WorkerResult) Utilization() float64 {
	return 100 * safeDiv(r.Active.Seconds(), (r.Active+r.Idle).Seconds())
}

// UnitsPerHour divides units by active hours, or 0 with no active time.
func (r WorkerResult) UnitsPerHour() float64 {
	return safeDiv(float64(r.Units), r.Active.Hours())
}

// Metric renders the published record.
func (r WorkerResult) Metric() model.WorkerMetric {
	return model.WorkerMetric{
		WorkerID:               r.Worker.WorkerID,
		Name:                   r.Worker.Name,
		TotalActiveTimeMinutes: round2(r.Active.Minutes()),
		TotalIdleTimeMinutes:   round2(r.Idle.Minutes()),
		UtilizationPercentage:  round2(r.Utilization()),
		TotalUnitsProduced:     r.Units,
		UnitsPerHour:           round2(r.UnitsPerHour()),
	}
}

// Worker computes a worker's figures over its events, in any order.
func Worker(cfg accumulator.Config, w model.Worker, events []model.Event) WorkerResult {
	t := cfg.Accumulate(events)
	return WorkerResult{
		Worker: w,
		Active: t.Duration(model.EventWorking),
		Idle:   t.Duration(model.EventIdle),
		Units:  t.Units,
		Events: t.Events,
	}
}

// WorkstationResult holds a station's unrounded figures.
type WorkstationResult struct {
	Workstation model.Workstation
	Working     time.Duration
	Idle        time.Duration
	Units       int
	Events      int
}

// Occupancy is working plus idle time.
func (r WorkstationResult) Occupancy() time.Duration {
	return r.Working + r.Idle
}

// Utilization is 100*working/occupancy, or 0 with no occupancy.
func (r WorkstationResult) Utilization() float64 {
	return 100 * safeDiv(r.Working.Seconds(), r.Occupancy().Seconds())
}

// ThroughputRate divides units by occupancy hours, or 0 with no occupancy.
func (r WorkstationResult) ThroughputRate() float64 {
	return safeDiv(float64(r.Units), r.Occupancy().Hours())
}

// Metric renders the published record.
func (r WorkstationResult) Metric() model.WorkstationMetric {
	return model.WorkstationMetric{
		StationID:             r.Workstation.StationID,
		Name:                  r.Workstation.Name,
		OccupancyTimeMinutes:  round2(r.Occupancy().Minutes()),
		UtilizationPercentage: round2(r.Utilization()),
		TotalUnitsProduced:    r.Units,
		ThroughputRate:        round2(r.ThroughputRate()),
	}
}

// Workstation computes a station's figures. Each worker seen at the station
// gets its own state machine; the per-worker totals are then summed, so two
// workers sharing a station never close each other's intervals.
func Workstation(cfg accumulator.Config, s model.Workstation, events []model.Event) WorkstationResult {
	var sum accumulator.Totals
	for _, group := range timeline.GroupByWorker(events) {
		sum = sum.Add(cfg.Accumulate(group))
	}
	return WorkstationResult{
		Workstation: s,
		Working:     sum.Duration(model.EventWorking),
		Idle:        sum.Duration(model.EventIdle),
		Units:       sum.Units,
		Events:      sum.Events,
	}
}

// FactoryResult holds the factory-wide unrounded figures.
type FactoryResult struct {
	Productive         time.Duration
	Units              int
	AverageUtilization float64
	Workers            int
	Workstations       int
}

// ProductionRate divides units by productive hours, or 0 with none.
func (r FactoryResult) ProductionRate() float64 {
	return safeDiv(float64(r.Units), r.Productive.Hours())
}

// Metric renders the published record.
func (r FactoryResult) Metric() model.FactoryMetric {
	return model.FactoryMetric{
		TotalProductiveTimeMinutes:   round2(r.Productive.Minutes()),
		TotalProductionCount:         r.Units,
		AverageProductionRate:        round2(r.ProductionRate()),
		AverageUtilizationPercentage: round2(r.AverageUtilization),
		TotalWorkers:                 r.Workers,
		TotalWorkstations:            r.Workstations,
	}
}

// Factory folds worker and station results. Only entities with at least one
// event count toward the totals and the utilization mean.
func Factory(workers []WorkerResult, stations []WorkstationResult) FactoryResult {
	var (
		out     FactoryResult
		utilSum float64
	)
	for _, w := range workers {
		if w.Events == 0 {
			continue
		}
		out.Workers++
		out.Productive += w.Active
		out.Units += w.Units
		utilSum += w.Utilization()
	}
	for _, s := range stations {
		if s.Events > 0 {
			out.Workstations++
		}
	}
	out.AverageUtilization = safeDiv(utilSum, float64(out.Workers))
	return out
}

func safeDiv(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
