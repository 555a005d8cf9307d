package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/shiftmetrics/internal/config"
	"github.com/okian/shiftmetrics/internal/simulator"
	"github.com/okian/shiftmetrics/pkg/logger"
)

// Default configuration constants.
const (
	defaultShiftLength = 8 * time.Hour
	defaultDuplicates  = 0.2
	defaultTimeout     = 30 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	var (
		baseURL     = flag.String("url", "http://localhost:8080", "Base URL of the service")
		shiftStart  = flag.String("start", today.Add(8*time.Hour).Format(time.RFC3339), "Shift start (RFC3339)")
		shiftLength = flag.Duration("length", defaultShiftLength, "Shift length")
		duplicates  = flag.Float64("duplicates", defaultDuplicates, "Fraction of events delivered twice")
		concurrency = flag.Int("concurrency", runtime.NumCPU(), "Number of concurrent senders")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed        = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		output      = flag.String("output", "", "Optional file for the generated events")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	start, err := time.Parse(time.RFC3339, *shiftStart)
	if err != nil {
		os.Stderr.WriteString("invalid -start: " + err.Error() + "\n")
		os.Exit(2)
	}

	reg := config.DefaultRegistry()
	cfg := &simulator.Config{
		BaseURL:     *baseURL,
		ShiftStart:  start,
		ShiftLength: *shiftLength,
		Duplicates:  *duplicates,
		Concurrency: *concurrency,
		Timeout:     *timeout,
		Seed:        *seed,
		OutputFile:  *output,
	}
	for _, w := range reg.Workers {
		cfg.WorkerIDs = append(cfg.WorkerIDs, w.WorkerID)
	}
	for _, s := range reg.Workstations {
		cfg.StationIDs = append(cfg.StationIDs, s.StationID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	if _, err := simulator.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		cancel()
		os.Exit(1)
	}
}
