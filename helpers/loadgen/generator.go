// Package loadgen drives synthetic station traffic against the ingestion
// webhook, for soak-testing the append-merge path under concurrent appends to
// the same monthly partition.
package loadgen

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Station is one simulated INMET station.
type Station struct {
	Name             string
	EventsPerSecond  float64
	PayloadGenerator PayloadGenerator
}

// LoadGenerator runs every station concurrently at its own rate and counts
// accepted events.
type LoadGenerator struct {
	client   Client
	stations []*Station
	logger   zerolog.Logger
	accepted int64
}

// NewLoadGenerator creates a generator over a fixed station set.
func NewLoadGenerator(client Client, stations []*Station, logger zerolog.Logger) *LoadGenerator {
	return &LoadGenerator{
		client:   client,
		stations: stations,
		logger:   logger.With().Str("component", "LoadGenerator").Logger(),
	}
}

// Run publishes for the given duration and returns how many events the
// ingestion surface accepted.
func (lg *LoadGenerator) Run(ctx context.Context, duration time.Duration) (int, error) {
	atomic.StoreInt64(&lg.accepted, 0)
	lg.logger.Info().Int("station_count", len(lg.stations)).Dur("duration", duration).Msg("Starting load run")

	if err := lg.client.Connect(); err != nil {
		return 0, err
	}
	defer lg.client.Disconnect()

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var wg sync.WaitGroup
	for _, station := range lg.stations {
		wg.Add(1)
		go func(s *Station) {
			defer wg.Done()
			lg.runStation(runCtx, s)
		}(station)
	}
	wg.Wait()

	total := int(atomic.LoadInt64(&lg.accepted))
	lg.logger.Info().Int("accepted_events", total).Msg("Load run finished")
	return total, nil
}

func (lg *LoadGenerator) runStation(ctx context.Context, station *Station) {
	if station.EventsPerSecond <= 0 {
		lg.logger.Warn().Str("station", station.Name).Msg("Station rate is zero, nothing to send")
		return
	}

	interval := time.Duration(float64(time.Second) / station.EventsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			accepted, err := lg.client.Publish(ctx, station)
			if err != nil {
				lg.logger.Error().Err(err).Str("station", station.Name).Msg("Publish failed")
				continue
			}
			if accepted {
				atomic.AddInt64(&lg.accepted, 1)
			}
		}
	}
}
