package consolidate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uva-clima/go-inmet/pkg/types"
)

// DecodeObject turns one fetched partition object into canonical rows. The
// object key carries both the format (suffix) and the device (second path
// segment).
func DecodeObject(key string, content []byte) ([]types.TelemetryEvent, error) {
	device := deviceFromKey(key)
	switch {
	case strings.HasSuffix(key, ".json"):
		return decodeEnvelope(device, content)
	case strings.HasSuffix(key, ".csv"):
		return decodeCSV(device, content)
	}
	return nil, fmt.Errorf("object %q has no recognized format suffix", key)
}

// deviceFromKey extracts the device from "inmet/{device}/{YYYY}/{MM}/...".
func deviceFromKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) > 1 {
		return parts[1]
	}
	return "unknown"
}

// decodeEnvelope decodes a JSON-mode object: one envelope wrapping the
// original hub payload, which may itself be a single event, a batch, or a
// raw delimited line stored as a JSON string.
func decodeEnvelope(device string, content []byte) ([]types.TelemetryEvent, error) {
	var env types.Envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.DeviceName != "" {
		device = env.DeviceName
	}

	trimmed := strings.TrimSpace(string(env.Data))
	switch {
	case strings.HasPrefix(trimmed, "\""):
		// Raw delimited lines are stored as JSON strings by the ingestion
		// side; unquote and decode as a data row.
		var line string
		if err := json.Unmarshal([]byte(trimmed), &line); err != nil {
			return nil, fmt.Errorf("decoding envelope raw line: %w", err)
		}
		ev, err := delimitedEvent(device, line, env.ReceivedAt)
		if err != nil {
			return nil, err
		}
		return []types.TelemetryEvent{ev}, nil
	case strings.HasPrefix(trimmed, "{"):
		ev, err := envelopeEvent(device, []byte(trimmed), env.ReceivedAt)
		if err != nil {
			return nil, err
		}
		return []types.TelemetryEvent{ev}, nil
	case strings.HasPrefix(trimmed, "["):
		var elems []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &elems); err != nil {
			return nil, fmt.Errorf("decoding envelope batch: %w", err)
		}
		events := make([]types.TelemetryEvent, 0, len(elems))
		for _, elem := range elems {
			ev, err := envelopeEvent(device, elem, env.ReceivedAt)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		return events, nil
	}
	return nil, fmt.Errorf("envelope data for %s is not an object, array or raw line", device)
}

func envelopeEvent(device string, raw []byte, receivedAt time.Time) (types.TelemetryEvent, error) {
	var hub types.HubPayload
	if err := json.Unmarshal(raw, &hub); err != nil {
		return types.TelemetryEvent{}, fmt.Errorf("decoding hub payload: %w", err)
	}
	ts := receivedAt.UTC()
	if hub.TS != 0 {
		ts = time.UnixMilli(hub.TS).UTC()
	}
	return types.TelemetryEvent{DeviceID: device, Timestamp: ts, Values: hub.Values}, nil
}

// delimitedEvent decodes one raw station line: the leading field is the
// timestamp, the remaining fields follow the canonical channel order. An
// unparseable timestamp falls back to receivedAt; cells that do not parse as
// numbers load as nulls, same as the CSV path.
func delimitedEvent(device, line string, receivedAt time.Time) (types.TelemetryEvent, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return types.TelemetryEvent{}, fmt.Errorf("envelope raw line for %s is empty", device)
	}
	sep := ","
	if !strings.Contains(line, ",") && strings.Contains(line, ";") {
		sep = ";"
	}
	cells := strings.Split(line, sep)

	ts, err := parseCSVTime(cells[0])
	if err != nil {
		ts = receivedAt.UTC()
	}

	values := make(map[string]*float64, len(types.Channels))
	for i, channel := range types.Channels {
		col := i + 1
		if col >= len(cells) {
			values[channel] = nil
			continue
		}
		cell := strings.TrimSpace(cells[col])
		if cell == "" {
			values[channel] = nil
			continue
		}
		v, parseErr := strconv.ParseFloat(cell, 64)
		if parseErr != nil {
			values[channel] = nil
			continue
		}
		values[channel] = &v
	}
	return types.TelemetryEvent{DeviceID: device, Timestamp: ts, Values: values}, nil
}

// decodeCSV decodes a CSV-mode object: the fixed header row followed by one
// line per event, timestamp first. Cells that do not parse as numbers load
// as nulls; a row whose timestamp does not parse fails the whole object.
func decodeCSV(device string, content []byte) ([]types.TelemetryEvent, error) {
	reader := csv.NewReader(strings.NewReader(string(content)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv object is empty")
	}

	header := records[0]
	if len(header) < 2 || strings.TrimSpace(header[0]) != "hora" {
		return nil, fmt.Errorf("csv header %q does not start with \"hora\"", strings.Join(header, ","))
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(name)
	}

	events := make([]types.TelemetryEvent, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		ts, err := parseCSVTime(record[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}

		values := make(map[string]*float64, len(columns)-1)
		for col := 1; col < len(columns) && col < len(record); col++ {
			cell := strings.TrimSpace(record[col])
			if cell == "" {
				values[columns[col]] = nil
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				values[columns[col]] = nil
				continue
			}
			values[columns[col]] = &v
		}
		events = append(events, types.TelemetryEvent{DeviceID: device, Timestamp: ts, Values: values})
	}
	return events, nil
}

func parseCSVTime(cell string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	for _, layout := range []string{types.CSVTimeLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", cell)
}
