package ingest

import (
	"fmt"
	"time"
)

// StorageMode selects the partition layout for a device's raw objects.
type StorageMode string

const (
	// ModeJSON stores one envelope object per event, second granularity.
	// Two events inside the same second for one device share a key; the
	// later write wins. Accepted limitation.
	ModeJSON StorageMode = "json"
	// ModeCSV stores one growing object per device per calendar month.
	ModeCSV StorageMode = "csv"
)

const objectKeyPrefix = "inmet"

// BuildObjectKey maps (mode, device, timestamp) to the storage object key.
// It is a pure function: no clock reads, no hidden state.
func BuildObjectKey(mode StorageMode, deviceID string, ts time.Time) string {
	ts = ts.UTC()
	switch mode {
	case ModeCSV:
		return fmt.Sprintf("%s/%s/%04d/%02d/%04d%02d.csv",
			objectKeyPrefix, deviceID, ts.Year(), int(ts.Month()), ts.Year(), int(ts.Month()))
	default:
		return fmt.Sprintf("%s/%s/%04d/%02d/%s.json",
			objectKeyPrefix, deviceID, ts.Year(), int(ts.Month()), ts.Format("20060102_150405"))
	}
}
