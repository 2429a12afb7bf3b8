package types

import (
	"encoding/json"
	"time"
)

// Channels is the canonical ordered set of sensor channels reported by the
// INMET stations. CSV partition objects use exactly this column order after
// the leading timestamp column.
var Channels = []string{
	"temp_ar",
	"umidade",
	"radiacao",
	"vento_vel",
	"precipitacao",
	"pressao",
}

// CSVHeader is the fixed header row of every CSV partition object.
const CSVHeader = "hora,temp_ar,umidade,radiacao,vento_vel,precipitacao,pressao"

// TelemetryEvent is one set of channel readings sharing a single timestamp.
// A nil value means the channel did not report at that instant.
type TelemetryEvent struct {
	DeviceID  string              `json:"device_id"`
	Timestamp time.Time           `json:"timestamp"`
	Values    map[string]*float64 `json:"values"`
}

// Envelope is the stored form of a JSON-mode partition object. Data carries
// the original hub payload untouched so the raw layer stays a full audit trail.
type Envelope struct {
	DeviceName string          `json:"device_name"`
	ReceivedAt time.Time       `json:"received_at"`
	Data       json.RawMessage `json:"data"`
}

// HubPayload is the shape the IoT hub posts for a single event:
// an epoch-millisecond timestamp plus named channel readings.
type HubPayload struct {
	TS     int64               `json:"ts"`
	Values map[string]*float64 `json:"values"`
}
