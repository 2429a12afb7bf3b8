package loadgen

import "context"

// PayloadGenerator produces one event body for a station. Implementations
// decide the payload shape: structured hub JSON, batches, or raw INMET lines.
type PayloadGenerator interface {
	GeneratePayload(station *Station) ([]byte, error)
}

// Client delivers generated payloads to the ingestion surface. The bool
// result reports whether the event was accepted, distinct from transport
// errors.
type Client interface {
	Connect() error
	Disconnect()
	Publish(ctx context.Context, station *Station) (bool, error)
}
