// consolidated runs one merge-and-load pass: raw partition objects (or a hub
// window pull) into the configured destination store.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/uva-clima/go-inmet/pkg/consolidate"
	"github.com/uva-clima/go-inmet/pkg/devices"
	"github.com/uva-clima/go-inmet/pkg/hub"
	"github.com/uva-clima/go-inmet/pkg/rawstore"
	"github.com/uva-clima/go-inmet/pkg/sink"
)

func main() {
	var (
		source      = flag.String("source", "partitions", "consolidation source: partitions or hub")
		destination = flag.String("destination", "postgres", "destination store: postgres or bigquery")
		device      = flag.String("device", "", "device name for -source=hub")
		windowHours = flag.Int("window-hours", 24, "pull window for -source=hub")
		parallelism = flag.Int("parallelism", 4, "objects in flight at once")
		timeout     = flag.Duration("timeout", 30*time.Minute, "whole-run timeout; expiry yields a partial report")
	)
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "consolidated").Logger()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	loader := newLoader(ctx, *destination, logger)
	defer loader.Close()

	switch *source {
	case "partitions":
		runPartitions(ctx, loader, *parallelism, logger)
	case "hub":
		runHub(ctx, loader, *device, *windowHours, logger)
	default:
		logger.Fatal().Str("source", *source).Msg("Unknown consolidation source")
	}
}

func newLoader(ctx context.Context, destination string, logger zerolog.Logger) sink.RowLoader {
	switch destination {
	case "postgres":
		cfg, err := sink.LoadPostgresConfigFromEnv()
		if err != nil {
			logger.Fatal().Err(err).Msg("Postgres configuration error")
		}
		loader, err := sink.NewPostgresLoader(ctx, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Destination store unreachable")
		}
		if err := loader.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to ensure destination schema")
		}
		return loader
	case "bigquery":
		cfg, err := sink.LoadBigQueryConfigFromEnv()
		if err != nil {
			logger.Fatal().Err(err).Msg("BigQuery configuration error")
		}
		client, err := sink.NewBigQueryClient(ctx, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		loader, err := sink.NewBigQueryLoader(ctx, client, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create BigQuery loader")
		}
		return loader
	}
	logger.Fatal().Str("destination", destination).Msg("Unknown destination store")
	return nil
}

func runPartitions(ctx context.Context, loader sink.RowLoader, parallelism int, logger zerolog.Logger) {
	bucket := os.Getenv("RAW_BUCKET")
	if bucket == "" {
		logger.Fatal().Msg("RAW_BUCKET environment variable not set")
	}

	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer gcsClient.Close()

	source, err := consolidate.NewPartitionSource(rawstore.NewGCSObjectStore(gcsClient), bucket, "inmet/")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create partition source")
	}

	consolidator, err := consolidate.NewConsolidator(source, loader, consolidate.Config{
		Parallelism:    parallelism,
		MaxLoadRetries: 2,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create consolidator")
	}

	report, err := consolidator.Run(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Consolidation run failed")
	}
	for _, failure := range report.Failed {
		logger.Error().Str("object_key", failure.Key).Str("reason", failure.Reason).Msg("Object left for re-drive")
	}
}

func runHub(ctx context.Context, loader sink.RowLoader, device string, windowHours int, logger zerolog.Logger) {
	if device == "" {
		logger.Fatal().Msg("-device is required for -source=hub")
	}

	hubCfg, err := hub.LoadConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("Hub configuration error")
	}
	client, err := hub.NewClient(hubCfg, nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create hub client")
	}

	registry := newRegistry(ctx, logger)

	consolidator, err := consolidate.NewHubConsolidator(client, registry, loader, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create hub consolidator")
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(windowHours) * time.Hour)
	if _, err := consolidator.ConsolidateWindow(ctx, device, start, end); err != nil {
		logger.Fatal().Err(err).Msg("Hub window consolidation failed")
	}
}

// newRegistry builds the device registry: Firestore as source of truth, with
// an optional Redis read-through cache when REDIS_ADDR is set.
func newRegistry(ctx context.Context, logger zerolog.Logger) devices.Fetcher {
	fsCfg, err := devices.LoadFirestoreConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("Registry configuration error")
	}
	fsClient, err := firestore.NewClient(ctx, fsCfg.ProjectID)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create firestore client")
	}
	registry, err := devices.NewFirestoreRegistry(fsClient, fsCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create firestore registry")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		return registry.Fetch
	}

	cached, err := devices.NewRedisCachedRegistry(ctx, &devices.RedisConfig{
		Addr:     redisAddr,
		CacheTTL: 5 * time.Minute,
	}, registry.Fetch, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create redis registry cache")
	}
	return cached.Fetch
}
