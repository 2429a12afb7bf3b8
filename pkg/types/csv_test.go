package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestCSVRow_FullReading(t *testing.T) {
	ev := TelemetryEvent{
		DeviceID:  "a701",
		Timestamp: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC),
		Values: map[string]*float64{
			"temp_ar":      f(25.5),
			"umidade":      f(80),
			"radiacao":     f(512.3),
			"vento_vel":    f(2.4),
			"precipitacao": f(0),
			"pressao":      f(1013.2),
		},
	}
	assert.Equal(t, "2025-07-14T12:00:00,25.5,80,512.3,2.4,0,1013.2", ev.CSVRow())
}

func TestCSVRow_AbsentChannelsAreEmptyCells(t *testing.T) {
	ev := TelemetryEvent{
		Timestamp: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC),
		Values:    map[string]*float64{"temp_ar": f(25.5), "pressao": f(1013.2)},
	}
	assert.Equal(t, "2025-07-14T12:00:00,25.5,,,,,1013.2", ev.CSVRow())

	empty := TelemetryEvent{Timestamp: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)}
	assert.Equal(t, "2025-07-14T12:00:00,,,,,,", empty.CSVRow())
}

func TestCSVRow_MatchesHeaderArity(t *testing.T) {
	ev := TelemetryEvent{Timestamp: time.Now().UTC()}
	assert.Equal(t,
		len(strings.Split(CSVHeader, ",")),
		len(strings.Split(ev.CSVRow(), ",")),
	)
}

func TestCSVRow_TimestampRenderedInUTC(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	ev := TelemetryEvent{Timestamp: time.Date(2025, 7, 14, 9, 0, 0, 0, saoPaulo)}
	assert.True(t, strings.HasPrefix(ev.CSVRow(), "2025-07-14T12:00:00,"))
}

func TestChannelsMatchHeader(t *testing.T) {
	assert.Equal(t, "hora,"+strings.Join(Channels, ","), CSVHeader)
}
