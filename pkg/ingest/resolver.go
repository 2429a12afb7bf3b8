package ingest

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// isoLayouts are the accepted shapes for the leading timestamp field of a raw
// delimited line. Offsets are accepted on parse but discarded afterwards: the
// wall-clock fields are kept as written and treated as UTC.
var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ResolveTimestamp extracts the event timestamp from a classified payload.
// It never fails: any shape it cannot make sense of resolves to receivedAt,
// so ingestion is never rejected over an unparseable timestamp.
func ResolveTimestamp(p Payload, receivedAt time.Time) time.Time {
	switch p.Kind {
	case KindSingle:
		if ts, ok := epochMillisFrom(p.Raw); ok {
			return ts
		}
	case KindBatch:
		// The first element establishes the partition for the whole batch.
		if len(p.Batch) > 0 {
			if ts, ok := epochMillisFrom(p.Batch[0]); ok {
				return ts
			}
		}
	case KindRawLine:
		if ts, ok := leadingISOField(p.Raw); ok {
			return ts
		}
	}
	return receivedAt.UTC()
}

// epochMillisFrom reads a numeric epoch-millisecond "ts" field from a JSON
// object. json.Number keeps the full integer precision of the wire value.
func epochMillisFrom(raw []byte) (time.Time, bool) {
	var record struct {
		TS json.Number `json:"ts"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&record); err != nil {
		return time.Time{}, false
	}
	if record.TS == "" {
		return time.Time{}, false
	}
	millis, err := record.TS.Int64()
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis).UTC(), true
}

// leadingISOField parses the first comma- or semicolon-separated field of a
// raw line as an ISO-8601 timestamp.
func leadingISOField(raw []byte) (time.Time, bool) {
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return time.Time{}, false
	}
	if idx := strings.IndexAny(line, ",;"); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)

	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, line)
		if err != nil {
			continue
		}
		// Drop the zone designator, keep the wall clock.
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), true
	}
	return time.Time{}, false
}
