package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/uva-clima/go-inmet/pkg/rawstore"
	"github.com/uva-clima/go-inmet/pkg/types"
)

// Result reports where and how one accepted event was persisted.
type Result struct {
	ObjectKey string                `json:"object"`
	Outcome   rawstore.AppendResult `json:"outcome"`
	Timestamp time.Time             `json:"timestamp"`
}

// ServiceConfig holds configuration for the ingestion Service.
type ServiceConfig struct {
	Mode StorageMode
}

// PartitionWriter is the slice of the append-merge writer the ingestion path
// needs. *rawstore.AppendMergeWriter satisfies it.
type PartitionWriter interface {
	AppendLine(ctx context.Context, key, header, line string) (rawstore.AppendResult, error)
	PutEnvelope(ctx context.Context, key string, body []byte) (rawstore.AppendResult, error)
}

// Service is the per-event ingestion path: classify the payload once at the
// boundary, resolve its timestamp, derive the partition key and hand the
// merge to the append-merge writer.
type Service struct {
	writer PartitionWriter
	config ServiceConfig
	logger zerolog.Logger
}

// NewService creates the ingestion service.
func NewService(writer PartitionWriter, config ServiceConfig, logger zerolog.Logger) (*Service, error) {
	if writer == nil {
		return nil, errors.New("append-merge writer cannot be nil")
	}
	if config.Mode != ModeJSON && config.Mode != ModeCSV {
		return nil, fmt.Errorf("unknown storage mode %q", config.Mode)
	}
	return &Service{
		writer: writer,
		config: config,
		logger: logger.With().Str("component", "IngestService").Logger(),
	}, nil
}

// Ingest merges one inbound event body for deviceID into its partition object.
func (s *Service) Ingest(ctx context.Context, deviceID string, body []byte, receivedAt time.Time) (Result, error) {
	payload := ClassifyPayload(body)
	ts := ResolveTimestamp(payload, receivedAt)
	key := BuildObjectKey(s.config.Mode, deviceID, ts)

	log := s.logger.With().
		Str("device_id", deviceID).
		Str("object_key", key).
		Str("payload_kind", payload.Kind.String()).
		Logger()

	var (
		outcome rawstore.AppendResult
		err     error
	)
	if s.config.Mode == ModeJSON {
		outcome, err = s.putEnvelope(ctx, deviceID, key, payload, receivedAt)
	} else {
		outcome, err = s.appendRows(ctx, deviceID, key, payload, ts)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to persist event")
		return Result{}, err
	}

	log.Info().Str("outcome", string(outcome)).Msg("Event persisted")
	return Result{ObjectKey: key, Outcome: outcome, Timestamp: ts}, nil
}

func (s *Service) putEnvelope(ctx context.Context, deviceID, key string, payload Payload, receivedAt time.Time) (rawstore.AppendResult, error) {
	envelope := types.Envelope{
		DeviceName: deviceID,
		ReceivedAt: receivedAt.UTC(),
		Data:       json.RawMessage(payload.Raw),
	}
	if payload.Kind == KindRawLine {
		// Raw lines are not valid JSON; store them as a JSON string.
		quoted, err := json.Marshal(string(payload.Raw))
		if err != nil {
			return "", fmt.Errorf("quoting raw line: %w", err)
		}
		envelope.Data = quoted
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("encoding envelope: %w", err)
	}
	return s.writer.PutEnvelope(ctx, key, body)
}

func (s *Service) appendRows(ctx context.Context, deviceID, key string, payload Payload, partitionTS time.Time) (rawstore.AppendResult, error) {
	lines, err := csvLines(deviceID, payload, partitionTS)
	if err != nil {
		return "", err
	}
	return s.writer.AppendLine(ctx, key, types.CSVHeader, strings.Join(lines, "\n"))
}

// csvLines turns a classified payload into serialized CSV rows. A raw line is
// appended byte-for-byte; structured payloads are formatted against the fixed
// channel order. Batch elements keep their own timestamps, the partition is
// still anchored on the first element's.
func csvLines(deviceID string, payload Payload, partitionTS time.Time) ([]string, error) {
	switch payload.Kind {
	case KindRawLine:
		return []string{strings.TrimRight(string(payload.Raw), "\r\n")}, nil
	case KindSingle:
		ev, err := eventFrom(deviceID, payload.Raw, partitionTS)
		if err != nil {
			return nil, err
		}
		return []string{ev.CSVRow()}, nil
	case KindBatch:
		lines := make([]string, 0, len(payload.Batch))
		for _, elem := range payload.Batch {
			ev, err := eventFrom(deviceID, elem, partitionTS)
			if err != nil {
				return nil, err
			}
			lines = append(lines, ev.CSVRow())
		}
		return lines, nil
	}
	return nil, fmt.Errorf("unhandled payload kind %v", payload.Kind)
}

func eventFrom(deviceID string, raw []byte, fallbackTS time.Time) (types.TelemetryEvent, error) {
	var hub types.HubPayload
	if err := json.Unmarshal(raw, &hub); err != nil {
		return types.TelemetryEvent{}, fmt.Errorf("decoding hub payload: %w", err)
	}
	ts := fallbackTS
	if hub.TS != 0 {
		ts = time.UnixMilli(hub.TS).UTC()
	}
	return types.TelemetryEvent{DeviceID: deviceID, Timestamp: ts, Values: hub.Values}, nil
}
