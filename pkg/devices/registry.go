// Package devices resolves station names to their hub identity: the device ID
// the telemetry API is queried with, the access token ingestion uses, and the
// station's location. Firestore is the source of truth; Redis sits in front
// of it as a read-through cache.
package devices

import "errors"

// ErrDeviceNotFound is returned when a station name has no registry entry.
var ErrDeviceNotFound = errors.New("devices: device not found")

// Record is one registered station.
type Record struct {
	HubDeviceID string `json:"hubDeviceID" firestore:"hubDeviceID"`
	AccessToken string `json:"accessToken" firestore:"accessToken"`
	Location    string `json:"location" firestore:"location"`
}

// Fetcher resolves a station name to its registry record.
type Fetcher func(deviceName string) (Record, error)
