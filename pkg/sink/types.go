package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/uva-clima/go-inmet/pkg/types"
)

// ====================================================================================
// This file defines the destination-store contract shared by the Postgres and
// BigQuery loaders. The invariant that matters is idempotence per object key:
// re-loading the same partition object must not duplicate destination rows.
// ====================================================================================

// ErrSchemaMismatch is returned when a batch carries channels the destination
// has no columns for.
var ErrSchemaMismatch = errors.New("sink: batch columns do not map to destination schema")

// ErrTransientWrite marks a destination failure worth retrying (connectivity,
// throttling, server-side hiccups).
var ErrTransientWrite = errors.New("sink: transient write failure")

// ErrFatalWrite marks a destination failure that retrying cannot fix, such as
// a constraint violation.
var ErrFatalWrite = errors.New("sink: fatal write failure")

// BatchStatus is the lifecycle of a LoadBatch.
type BatchStatus string

const (
	StatusPending BatchStatus = "pending"
	StatusLoaded  BatchStatus = "loaded"
	StatusFailed  BatchStatus = "failed"
)

// LoadBatch is a bounded group of rows staged for one destination write.
// SourceKeys names the partition objects the rows came from, so a caller can
// keep a processed-keys ledger outside this package.
type LoadBatch struct {
	ID         string
	Rows       []types.TelemetryEvent
	SourceKeys []string
	Status     BatchStatus
}

// NewLoadBatch stages rows decoded from one or more partition objects.
func NewLoadBatch(rows []types.TelemetryEvent, sourceKeys ...string) *LoadBatch {
	return &LoadBatch{
		ID:         uuid.New().String(),
		Rows:       rows,
		SourceKeys: sourceKeys,
		Status:     StatusPending,
	}
}

// LoadResult reports one completed load.
type LoadResult struct {
	RowsWritten int64
}

// RowLoader is the destination-store interface consumed by the consolidator.
type RowLoader interface {
	// Load writes the batch idempotently: repeating a Load of the same rows
	// leaves the destination unchanged after the first success.
	Load(ctx context.Context, batch *LoadBatch) (LoadResult, error)
	Close() error
}

// validateColumns rejects batches whose channel set cannot be mapped onto the
// destination's fixed column set.
func validateColumns(batch *LoadBatch) error {
	known := make(map[string]struct{}, len(types.Channels))
	for _, channel := range types.Channels {
		known[channel] = struct{}{}
	}
	for _, row := range batch.Rows {
		for channel := range row.Values {
			if _, ok := known[channel]; !ok {
				return fmt.Errorf("%w: unknown channel %q", ErrSchemaMismatch, channel)
			}
		}
	}
	return nil
}
