// ingestd runs the webhook ingestion service: hub event in, partition object
// out.
package main

import (
	"context"
	"errors"
	"os"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/uva-clima/go-inmet/pkg/consolidate"
	"github.com/uva-clima/go-inmet/pkg/ingest"
	"github.com/uva-clima/go-inmet/pkg/rawstore"
	"github.com/uva-clima/go-inmet/pkg/webhook"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "ingestd").Logger()
	ctx := context.Background()

	bucket := os.Getenv("RAW_BUCKET")
	if bucket == "" {
		logger.Fatal().Msg("RAW_BUCKET environment variable not set")
	}
	mode := ingest.StorageMode(os.Getenv("STORAGE_MODE"))
	if mode == "" {
		mode = ingest.ModeJSON
	}
	listen := os.Getenv("LISTEN_ADDR")
	if listen == "" {
		listen = ":8080"
	}

	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer gcsClient.Close()
	store := rawstore.NewGCSObjectStore(gcsClient)

	writer, err := rawstore.NewAppendMergeWriter(store, rawstore.AppendMergeWriterConfig{BucketName: bucket}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create append-merge writer")
	}

	ingestor, err := ingest.NewService(writer, ingest.ServiceConfig{Mode: mode}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create ingest service")
	}

	lister, err := consolidate.NewPartitionSource(store, bucket, "inmet/")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create partition source")
	}

	server, err := webhook.NewServer(ingestor, lister, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create webhook server")
	}

	logger.Info().Str("listen_addr", listen).Str("storage_mode", string(mode)).Msg("Ingestion service started")
	if err := server.Router().Run(listen); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("HTTP server exited")
	}
}
