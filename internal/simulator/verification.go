package simulator

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/pkg/logger"
)

// Verify compares what the service reports against the generated shift. It
// expects the service held none of these events before the run.
func Verify(ctx context.Context, client *Client, events []model.EventInput, stats *Stats) error {
	log := logger.Get().Named("simulator")
	var problems []error
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if stats.Created != len(events) {
		fail("created %d events, generated %d", stats.Created, len(events))
	}
	if stats.Created+stats.Duplicate+stats.Failed != stats.Deliveries {
		fail("%d deliveries but %d outcomes", stats.Deliveries, stats.Created+stats.Duplicate+stats.Failed)
	}

	units := make(map[string]int)
	total := 0
	for _, e := range events {
		if e.EventType == model.EventProductCount {
			units[e.WorkerID] += e.CountOrDefault()
			total += e.CountOrDefault()
		}
	}

	workers, err := client.WorkerMetrics(ctx)
	if err != nil {
		return err
	}
	workerUnits := 0
	for _, m := range workers {
		if m.TotalUnitsProduced != units[m.WorkerID] {
			fail("worker %s produced %d units, generated %d", m.WorkerID, m.TotalUnitsProduced, units[m.WorkerID])
		}
		if m.TotalActiveTimeMinutes < 0 || m.TotalIdleTimeMinutes < 0 || m.UnitsPerHour < 0 {
			fail("worker %s has a negative metric", m.WorkerID)
		}
		if m.UtilizationPercentage < 0 || m.UtilizationPercentage > 100 {
			fail("worker %s utilization %.2f outside [0, 100]", m.WorkerID, m.UtilizationPercentage)
		}
		workerUnits += m.TotalUnitsProduced
	}

	stations, err := client.WorkstationMetrics(ctx)
	if err != nil {
		return err
	}
	stationUnits := 0
	for _, m := range stations {
		stationUnits += m.TotalUnitsProduced
	}

	factory, err := client.FactoryMetrics(ctx)
	if err != nil {
		return err
	}
	if factory.TotalProductionCount != total {
		fail("factory counted %d units, generated %d", factory.TotalProductionCount, total)
	}
	if workerUnits != total || stationUnits != total {
		fail("units do not add up: workers %d, stations %d, generated %d", workerUnits, stationUnits, total)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrVerification, errors.Join(problems...))
	}
	log.Info(ctx, "metrics match the generated shift",
		logger.Int("units", total),
		logger.Int("activeWorkers", factory.TotalWorkers),
		logger.Float64("averageUtilization", factory.AverageUtilizationPercentage))
	return nil
}
