package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/pkg/logger"
)

const directoryPermission = 0750

// Run generates a shift, delivers it with retransmissions in random order,
// then checks the service stored each event once and counted every unit.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	log := logger.Get().Named("simulator")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting shift simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Time("shiftStart", cfg.ShiftStart),
		logger.Int("workers", len(cfg.WorkerIDs)),
		logger.Int("concurrency", cfg.Concurrency),
		logger.Float64("duplicates", cfg.Duplicates),
		logger.Int64("seed", cfg.Seed))

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Ready(ctx); err != nil {
		return nil, fmt.Errorf("service readiness check failed: %w", err)
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible synthetic data
	events := Generate(*cfg, rng)
	deliveries := Deliveries(events, cfg.Duplicates, rng)
	stats.EventsGenerated = len(events)
	stats.Deliveries = len(deliveries)

	if err := submit(ctx, client, cfg.Concurrency, deliveries, stats); err != nil {
		return stats, err
	}

	if cfg.OutputFile != "" {
		if err := saveEvents(cfg.OutputFile, events); err != nil {
			log.Warn(ctx, "failed to save events to file", logger.Error(err))
		}
	}

	verifyErr := Verify(ctx, client, events, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("deliveries", stats.Deliveries),
		logger.Int("created", stats.Created),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration))

	if verifyErr != nil {
		return stats, verifyErr
	}
	log.Info(ctx, "simulation verified")
	return stats, nil
}

func validate(cfg *Config) error {
	switch {
	case cfg.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case len(cfg.WorkerIDs) == 0 || len(cfg.StationIDs) == 0:
		return fmt.Errorf("%w: at least one worker and one station are required", ErrInvalidConfig)
	case cfg.ShiftLength <= 0:
		return fmt.Errorf("%w: shift length must be positive", ErrInvalidConfig)
	case cfg.Duplicates < 0 || cfg.Duplicates > 1:
		return fmt.Errorf("%w: duplicate rate must be within [0, 1]", ErrInvalidConfig)
	case cfg.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	}
	return nil
}

// submit posts deliveries from a pool of senders.
func submit(ctx context.Context, client *Client, senders int, deliveries []model.EventInput, stats *Stats) error {
	var (
		created, duplicate, failed atomic.Int64
		wg                         sync.WaitGroup
		firstErr                   error
		errOnce                    sync.Once
	)
	ch := make(chan model.EventInput, senders*2)

	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in := range ch {
				_, ok, err := client.PostEvent(ctx, in)
				switch {
				case err != nil:
					failed.Add(1)
					errOnce.Do(func() { firstErr = err })
				case ok:
					created.Add(1)
				default:
					duplicate.Add(1)
				}
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, in := range deliveries {
			select {
			case <-ctx.Done():
				return
			case ch <- in:
			}
		}
	}()
	wg.Wait()

	stats.Created = int(created.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Failed = int(failed.Load())

	if err := ctx.Err(); err != nil {
		return err
	}
	if firstErr != nil {
		return fmt.Errorf("%d of %d deliveries failed, first: %w", stats.Failed, len(deliveries), firstErr)
	}
	return nil
}

func saveEvents(filename string, events []model.EventInput) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}
