// Package align reshapes the hub's key-wise telemetry into row-aligned
// records: one independently-timestamped series per channel goes in, one row
// per distinct timestamp comes out.
package align

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrEmptySeriesSet is returned when the input holds no readings at all:
// either no channels, or every channel's series is empty.
var ErrEmptySeriesSet = errors.New("align: no series to align")

// SeriesPoint is one raw reading of a channel as the hub returns it. Value is
// text on the wire and coerced to a number during alignment.
type SeriesPoint struct {
	TS    int64  `json:"ts"`
	Value string `json:"value"`
}

// ChannelSeries is one named channel's raw time series.
type ChannelSeries []SeriesPoint

// AlignedRow is one output row: a timestamp plus one slot per known channel,
// nil where the channel has no reading at that instant.
type AlignedRow struct {
	Timestamp time.Time
	Values    map[string]*float64
}

// Align performs a full outer join of all channels on timestamp. The output
// timestamp domain is the union of every channel's timestamps, sorted
// ascending. Non-numeric values coerce to nil rather than failing the join.
// If one channel reports the same timestamp twice, the later point in the
// series wins; that tie-break is part of this function's contract.
func Align(seriesByChannel map[string]ChannelSeries) ([]AlignedRow, error) {
	channels := make([]string, 0, len(seriesByChannel))
	for name := range seriesByChannel {
		channels = append(channels, name)
	}
	sort.Strings(channels)

	rowsByTS := make(map[int64]map[string]*float64)
	for _, channel := range channels {
		for _, point := range seriesByChannel[channel] {
			slot, ok := rowsByTS[point.TS]
			if !ok {
				slot = make(map[string]*float64, len(channels))
				rowsByTS[point.TS] = slot
			}
			slot[channel] = coerce(point.Value)
		}
	}

	if len(rowsByTS) == 0 {
		return nil, ErrEmptySeriesSet
	}

	stamps := make([]int64, 0, len(rowsByTS))
	for ts := range rowsByTS {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	rows := make([]AlignedRow, 0, len(stamps))
	for _, ts := range stamps {
		values := make(map[string]*float64, len(channels))
		for _, channel := range channels {
			values[channel] = rowsByTS[ts][channel]
		}
		rows = append(rows, AlignedRow{
			Timestamp: time.UnixMilli(ts).UTC(),
			Values:    values,
		})
	}
	return rows, nil
}

// coerce turns the hub's textual reading into a number. Anything that does
// not parse (sensor error strings, empty cells) becomes a null, not an error.
func coerce(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}
