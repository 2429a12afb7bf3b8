package devices

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore-backed registry.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// LoadFirestoreConfigFromEnv reads the registry configuration from
// environment variables.
func LoadFirestoreConfigFromEnv() (*FirestoreConfig, error) {
	cfg := &FirestoreConfig{
		ProjectID:      os.Getenv("GCP_PROJECT_ID"),
		CollectionName: os.Getenv("FIRESTORE_COLLECTION_DEVICES"),
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("GCP_PROJECT_ID environment variable not set for Firestore")
	}
	if cfg.CollectionName == "" {
		cfg.CollectionName = "devices"
	}
	return cfg, nil
}

// FirestoreRegistry is the source of truth for station records. Document IDs
// are the station names.
type FirestoreRegistry struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreRegistry creates a registry over an injected client; the caller
// owns the client's lifecycle.
func NewFirestoreRegistry(client *firestore.Client, cfg *FirestoreConfig, logger zerolog.Logger) (*FirestoreRegistry, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	return &FirestoreRegistry{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreRegistry").Logger(),
	}, nil
}

// Fetch retrieves one station record.
func (r *FirestoreRegistry) Fetch(deviceName string) (Record, error) {
	snap, err := r.client.Collection(r.collectionName).Doc(deviceName).Get(context.Background())
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Record{}, ErrDeviceNotFound
		}
		return Record{}, fmt.Errorf("firestore get for %s: %w", deviceName, err)
	}

	var rec Record
	if err := snap.DataTo(&rec); err != nil {
		return Record{}, fmt.Errorf("firestore DataTo for %s: %w", deviceName, err)
	}
	if rec.HubDeviceID == "" {
		return Record{}, fmt.Errorf("incomplete registry record for %s", deviceName)
	}
	return rec, nil
}

// Close implements io.Closer without closing the injected client.
func (r *FirestoreRegistry) Close() error {
	return nil
}
