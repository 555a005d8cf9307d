package simulator

import (
	"math/rand"
	"time"

	"github.com/okian/shiftmetrics/internal/domain/model"
)

// Generation bounds, in minutes unless noted.
const (
	minActivity    = 15
	maxActivity    = 60
	productMargin  = 5
	maxProducts    = 3
	maxProductUnit = 5
	stationSwitch  = 0.2
)

// Generate builds one shift per worker. Each worker alternates activities of
// 15 to 60 minutes, three in four of them working; every working stretch
// carries one to three product_count events. Workers occasionally move to
// another station. No two generated events share an identity key.
func Generate(cfg Config, rng *rand.Rand) []model.EventInput {
	var (
		out  []model.EventInput
		seen = make(map[string]struct{})
	)
	add := func(in model.EventInput) {
		k := model.Key{Timestamp: in.Timestamp, WorkerID: in.WorkerID, WorkstationID: in.WorkstationID, EventType: in.EventType}.String()
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		out = append(out, in)
	}

	end := cfg.ShiftStart.Add(cfg.ShiftLength)
	for _, worker := range cfg.WorkerIDs {
		station := cfg.StationIDs[rng.Intn(len(cfg.StationIDs))]
		for at := cfg.ShiftStart; at.Before(end); {
			minutes := minActivity + rng.Intn(maxActivity-minActivity+1)
			state := model.EventWorking
			if rng.Intn(4) == 0 {
				state = model.EventIdle
			}
			add(model.EventInput{
				Timestamp:     at,
				WorkerID:      worker,
				WorkstationID: station,
				EventType:     state,
				Confidence:    model.Ptr(confidence(rng, 0.85, 0.98)),
			})

			if state == model.EventWorking {
				for n := 1 + rng.Intn(maxProducts); n > 0; n-- {
					offset := productMargin + rng.Intn(minutes-2*productMargin+1)
					count := 1 + rng.Intn(maxProductUnit)
					add(model.EventInput{
						Timestamp:     at.Add(time.Duration(offset) * time.Minute),
						WorkerID:      worker,
						WorkstationID: station,
						EventType:     model.EventProductCount,
						Confidence:    model.Ptr(confidence(rng, 0.90, 0.99)),
						Count:         &count,
					})
				}
			}

			at = at.Add(time.Duration(minutes) * time.Minute)
			if rng.Float64() < stationSwitch {
				station = cfg.StationIDs[rng.Intn(len(cfg.StationIDs))]
			}
		}
	}
	return out
}

// Deliveries returns events in shuffled order with roughly a dupRate share
// of them repeated, the way an edge network retransmits.
func Deliveries(events []model.EventInput, dupRate float64, rng *rand.Rand) []model.EventInput {
	out := make([]model.EventInput, 0, len(events)+int(float64(len(events))*dupRate)+1)
	out = append(out, events...)
	for _, e := range events {
		if rng.Float64() < dupRate {
			out = append(out, e)
		}
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func confidence(rng *rand.Rand, lo, hi float64) float64 {
	v := lo + rng.Float64()*(hi-lo)
	return float64(int(v*100+0.5)) / 100
}
