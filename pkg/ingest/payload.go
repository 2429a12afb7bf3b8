package ingest

import (
	"bytes"
	"encoding/json"
)

// PayloadKind tags the historically-evolved shapes the hub relays:
// a single JSON object, an array of objects, or a raw delimited line.
type PayloadKind int

const (
	KindSingle PayloadKind = iota
	KindBatch
	KindRawLine
)

func (k PayloadKind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindBatch:
		return "batch"
	case KindRawLine:
		return "raw_line"
	}
	return "unknown"
}

// Payload is an inbound event body classified exactly once at the boundary.
// Raw always holds the original bytes; Batch is populated for KindBatch.
type Payload struct {
	Kind  PayloadKind
	Raw   []byte
	Batch []json.RawMessage
}

// ClassifyPayload decides the payload shape. Anything that is not a JSON
// object or a JSON array is treated as a raw delimited line; classification
// itself never fails.
func ClassifyPayload(body []byte) Payload {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Payload{Kind: KindRawLine, Raw: body}
	}

	switch trimmed[0] {
	case '{':
		if json.Valid(trimmed) {
			return Payload{Kind: KindSingle, Raw: trimmed}
		}
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err == nil {
			return Payload{Kind: KindBatch, Raw: trimmed, Batch: elems}
		}
	}
	return Payload{Kind: KindRawLine, Raw: body}
}
