// Package consolidate runs the batch merge-and-load pass: it enumerates raw
// partition objects, decodes them into canonical rows and loads the rows into
// a destination store, isolating per-object failures so one corrupt partition
// never blocks the rest of the corpus.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/uva-clima/go-inmet/pkg/sink"
)

// Failure records one object that could not be consolidated.
type Failure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Report summarizes one consolidation run. A canceled run yields a partial
// report covering the objects finished before the stop.
type Report struct {
	ObjectsSeen   int       `json:"objects_seen"`
	ObjectsLoaded int       `json:"objects_loaded"`
	RowsLoaded    int64     `json:"rows_loaded"`
	Failed        []Failure `json:"failed,omitempty"`
}

// Config holds configuration for the Consolidator.
type Config struct {
	// Parallelism bounds how many independent objects are in flight at once.
	Parallelism int
	// MaxLoadRetries bounds re-attempts of transient destination failures
	// per object before the object is recorded as failed.
	MaxLoadRetries int
	// RetryBackoff is the pause between those attempts.
	RetryBackoff time.Duration
	// Filter, when set, skips keys it returns false for. Callers use it to
	// resume a run by filtering out keys already recorded as loaded.
	Filter func(key string) bool
}

// Consolidator drives one merge-and-load pass from an ObjectSource into a
// RowLoader.
type Consolidator struct {
	source ObjectSource
	loader sink.RowLoader
	config Config
	logger zerolog.Logger
}

// NewConsolidator wires a consolidation pass.
func NewConsolidator(source ObjectSource, loader sink.RowLoader, config Config, logger zerolog.Logger) (*Consolidator, error) {
	if source == nil {
		return nil, errors.New("object source cannot be nil")
	}
	if loader == nil {
		return nil, errors.New("row loader cannot be nil")
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 4
	}
	if config.MaxLoadRetries < 0 {
		config.MaxLoadRetries = 0
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	return &Consolidator{
		source: source,
		loader: loader,
		config: config,
		logger: logger.With().Str("component", "Consolidator").Logger(),
	}, nil
}

// Run enumerates the corpus and processes every object. Only enumeration
// errors fail the run itself; everything per-object lands in the report.
// Objects are processed from a lexicographically sorted key list so re-runs
// after a partial failure see the same order.
func (c *Consolidator) Run(ctx context.Context) (*Report, error) {
	keys, err := c.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating partition objects: %w", err)
	}
	sort.Strings(keys)

	if c.config.Filter != nil {
		filtered := keys[:0]
		for _, key := range keys {
			if c.config.Filter(key) {
				filtered = append(filtered, key)
			}
		}
		keys = filtered
	}

	c.logger.Info().Int("object_count", len(keys)).Msg("Starting consolidation run")

	var (
		mu     sync.Mutex
		report Report
	)
	report.ObjectsSeen = len(keys)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Parallelism)

	for _, key := range keys {
		key := key
		if gctx.Err() != nil {
			// Cooperative stop: objects not yet started stay untouched and
			// show up again on the next run.
			mu.Lock()
			report.ObjectsSeen--
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			rows, err := c.processObject(gctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// An object interrupted mid-flight by cancellation is not
				// corrupt: leave it out of the failure report with the
				// unstarted objects so Failed only carries genuine defects.
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					report.ObjectsSeen--
					return nil
				}
				report.Failed = append(report.Failed, Failure{Key: key, Reason: err.Error()})
				c.logger.Error().Err(err).Str("object_key", key).Msg("Object failed, continuing run")
				return nil
			}
			report.ObjectsLoaded++
			report.RowsLoaded += rows
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Key < report.Failed[j].Key })

	c.logger.Info().
		Int("objects_seen", report.ObjectsSeen).
		Int("objects_loaded", report.ObjectsLoaded).
		Int64("rows_loaded", report.RowsLoaded).
		Int("objects_failed", len(report.Failed)).
		Msg("Consolidation run finished")
	return &report, nil
}

// processObject takes one object pending → decoded → loaded, retrying only
// transient destination failures.
func (c *Consolidator) processObject(ctx context.Context, key string) (int64, error) {
	content, err := c.source.Fetch(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}

	rows, err := DecodeObject(key, content)
	if err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxLoadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.config.RetryBackoff):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}

		batch := sink.NewLoadBatch(rows, key)
		result, err := c.loader.Load(ctx, batch)
		if err == nil {
			return result.RowsWritten, nil
		}
		lastErr = err
		if !errors.Is(err, sink.ErrTransientWrite) {
			break
		}
		c.logger.Warn().Err(err).Str("object_key", key).Int("attempt", attempt+1).Msg("Transient load failure, retrying")
	}
	return 0, fmt.Errorf("load: %w", lastErr)
}
