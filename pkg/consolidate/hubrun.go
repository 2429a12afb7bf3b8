package consolidate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/uva-clima/go-inmet/pkg/align"
	"github.com/uva-clima/go-inmet/pkg/devices"
	"github.com/uva-clima/go-inmet/pkg/sink"
	"github.com/uva-clima/go-inmet/pkg/types"
)

// SeriesFetcher is the hub pull interface: raw key-wise series for one device
// and window. *hub.Client satisfies it.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context, hubDeviceID string, channels []string, start, end time.Time) (map[string]align.ChannelSeries, error)
}

// HubConsolidator consolidates straight from the hub instead of from stored
// partitions: it pulls each channel's series for a window, aligns them into
// rows and loads the result as one batch per device.
type HubConsolidator struct {
	fetcher  SeriesFetcher
	registry devices.Fetcher
	loader   sink.RowLoader
	logger   zerolog.Logger
}

// NewHubConsolidator wires the hub-pull consolidation path.
func NewHubConsolidator(fetcher SeriesFetcher, registry devices.Fetcher, loader sink.RowLoader, logger zerolog.Logger) (*HubConsolidator, error) {
	if fetcher == nil {
		return nil, errors.New("series fetcher cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("device registry cannot be nil")
	}
	if loader == nil {
		return nil, errors.New("row loader cannot be nil")
	}
	return &HubConsolidator{
		fetcher:  fetcher,
		registry: registry,
		loader:   loader,
		logger:   logger.With().Str("component", "HubConsolidator").Logger(),
	}, nil
}

// ConsolidateWindow pulls, aligns and loads one device's window. The batch's
// source key encodes device and window so a processed-keys ledger can be kept
// for this path too.
func (h *HubConsolidator) ConsolidateWindow(ctx context.Context, deviceName string, start, end time.Time) (sink.LoadResult, error) {
	rec, err := h.registry(deviceName)
	if err != nil {
		return sink.LoadResult{}, fmt.Errorf("resolving device %q: %w", deviceName, err)
	}

	series, err := h.fetcher.FetchSeries(ctx, rec.HubDeviceID, types.Channels, start, end)
	if err != nil {
		return sink.LoadResult{}, fmt.Errorf("pulling series for %q: %w", deviceName, err)
	}

	aligned, err := align.Align(series)
	if err != nil {
		return sink.LoadResult{}, err
	}

	rows := make([]types.TelemetryEvent, 0, len(aligned))
	for _, row := range aligned {
		rows = append(rows, types.TelemetryEvent{
			DeviceID:  deviceName,
			Timestamp: row.Timestamp,
			Values:    row.Values,
		})
	}

	sourceKey := fmt.Sprintf("hub/%s/%d-%d", deviceName, start.UnixMilli(), end.UnixMilli())
	result, err := h.loader.Load(ctx, sink.NewLoadBatch(rows, sourceKey))
	if err != nil {
		return sink.LoadResult{}, fmt.Errorf("loading aligned rows for %q: %w", deviceName, err)
	}

	h.logger.Info().
		Str("device_name", deviceName).
		Int("row_count", len(rows)).
		Int64("rows_written", result.RowsWritten).
		Msg("Hub window consolidated")
	return result, nil
}
