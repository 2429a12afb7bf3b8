package sink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/uva-clima/go-inmet/pkg/types"
)

// BigQueryConfig holds configuration for the analytical sink.
type BigQueryConfig struct {
	ProjectID       string
	DatasetID       string
	TableID         string
	CredentialsFile string
}

// LoadBigQueryConfigFromEnv reads the BigQuery loader configuration from
// environment variables.
func LoadBigQueryConfigFromEnv() (*BigQueryConfig, error) {
	cfg := &BigQueryConfig{
		ProjectID:       os.Getenv("GCP_PROJECT_ID"),
		DatasetID:       os.Getenv("BQ_DATASET_ID"),
		TableID:         os.Getenv("BQ_TABLE_ID"),
		CredentialsFile: os.Getenv("GCP_BQ_CREDENTIALS_FILE"),
	}
	if cfg.ProjectID == "" {
		return nil, errors.New("GCP_PROJECT_ID environment variable not set")
	}
	if cfg.DatasetID == "" {
		return nil, errors.New("BQ_DATASET_ID environment variable not set")
	}
	if cfg.TableID == "" {
		return nil, errors.New("BQ_TABLE_ID environment variable not set")
	}
	return cfg, nil
}

// NewBigQueryClient creates a production BigQuery client, using a credentials
// file when configured and Application Default Credentials otherwise.
func NewBigQueryClient(ctx context.Context, cfg *BigQueryConfig, logger zerolog.Logger) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	logger.Info().Str("project_id", cfg.ProjectID).Msg("BigQuery client created")
	return client, nil
}

// bigqueryRow is the destination row shape. The bigquery tags drive schema
// inference when the table is created on first use.
type bigqueryRow struct {
	DeviceName   string    `bigquery:"device_name"`
	Timestamp    time.Time `bigquery:"timestamp"`
	TempAr       *float64  `bigquery:"temp_ar"`
	Umidade      *float64  `bigquery:"umidade"`
	Radiacao     *float64  `bigquery:"radiacao"`
	VentoVel     *float64  `bigquery:"vento_vel"`
	Precipitacao *float64  `bigquery:"precipitacao"`
	Pressao      *float64  `bigquery:"pressao"`
	SourceKey    string    `bigquery:"source_key"`

	insertID string
}

// Save implements bigquery.ValueSaver. The deterministic insert ID is the
// dedup key: streaming the same row twice collapses into one on the backend.
func (r *bigqueryRow) Save() (map[string]bigquery.Value, string, error) {
	row := map[string]bigquery.Value{
		"device_name": r.DeviceName,
		"timestamp":   r.Timestamp,
		"source_key":  r.SourceKey,
	}
	put := func(name string, v *float64) {
		if v != nil {
			row[name] = *v
		}
	}
	put("temp_ar", r.TempAr)
	put("umidade", r.Umidade)
	put("radiacao", r.Radiacao)
	put("vento_vel", r.VentoVel)
	put("precipitacao", r.Precipitacao)
	put("pressao", r.Pressao)
	return row, r.insertID, nil
}

// BigQueryLoader implements RowLoader for the analytical sink.
type BigQueryLoader struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
	logger   zerolog.Logger
}

// NewBigQueryLoader wires an inserter for the configured table, creating the
// table with an inferred schema when it does not exist yet.
func NewBigQueryLoader(ctx context.Context, client *bigquery.Client, cfg *BigQueryConfig, logger zerolog.Logger) (*BigQueryLoader, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("bigquery config cannot be nil")
	}
	logger = logger.With().
		Str("component", "BigQueryLoader").
		Str("dataset_id", cfg.DatasetID).
		Str("table_id", cfg.TableID).
		Logger()

	tableRef := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	if _, err := tableRef.Metadata(ctx); err != nil {
		if !strings.Contains(err.Error(), "notFound") {
			return nil, fmt.Errorf("table metadata: %w", err)
		}
		schema, inferErr := bigquery.InferSchema(bigqueryRow{})
		if inferErr != nil {
			return nil, fmt.Errorf("schema inference: %w", inferErr)
		}
		meta := &bigquery.TableMetadata{
			Schema: schema,
			TimePartitioning: &bigquery.TimePartitioning{
				Type:  bigquery.DayPartitioningType,
				Field: "timestamp",
			},
		}
		if createErr := tableRef.Create(ctx, meta); createErr != nil {
			return nil, fmt.Errorf("table create: %w", createErr)
		}
		logger.Info().Msg("Destination table created with inferred schema")
	}

	return &BigQueryLoader{
		client:   client,
		inserter: tableRef.Inserter(),
		logger:   logger,
	}, nil
}

// Load streams the batch. Dedup relies on deterministic insert IDs derived
// from device, timestamp and channel set.
func (l *BigQueryLoader) Load(ctx context.Context, batch *LoadBatch) (LoadResult, error) {
	if err := validateColumns(batch); err != nil {
		batch.Status = StatusFailed
		return LoadResult{}, err
	}
	if len(batch.Rows) == 0 {
		batch.Status = StatusLoaded
		return LoadResult{}, nil
	}

	sourceKey := strings.Join(batch.SourceKeys, ",")
	rows := make([]*bigqueryRow, 0, len(batch.Rows))
	for _, ev := range batch.Rows {
		rows = append(rows, &bigqueryRow{
			DeviceName:   ev.DeviceID,
			Timestamp:    ev.Timestamp.UTC(),
			TempAr:       ev.Values["temp_ar"],
			Umidade:      ev.Values["umidade"],
			Radiacao:     ev.Values["radiacao"],
			VentoVel:     ev.Values["vento_vel"],
			Precipitacao: ev.Values["precipitacao"],
			Pressao:      ev.Values["pressao"],
			SourceKey:    sourceKey,
			insertID:     dedupInsertID(ev),
		})
	}

	if err := l.inserter.Put(ctx, rows); err != nil {
		batch.Status = StatusFailed
		if multiErr, ok := err.(bigquery.PutMultiError); ok {
			for _, rowErr := range multiErr {
				l.logger.Error().
					Int("row_index", rowErr.RowIndex).
					Msgf("BigQuery insert error for row: %v", rowErr.Errors)
			}
		}
		return LoadResult{}, classifyBigQueryError(err)
	}

	batch.Status = StatusLoaded
	l.logger.Info().
		Str("batch_id", batch.ID).
		Int("batch_size", len(rows)).
		Msg("Batch streamed into BigQuery")
	return LoadResult{RowsWritten: int64(len(rows))}, nil
}

// Close is a no-op; the client's lifecycle belongs to the caller so it can be
// shared across loaders.
func (l *BigQueryLoader) Close() error {
	return nil
}

// dedupInsertID hashes device + timestamp + reported channel set into the
// streaming insert ID.
func dedupInsertID(ev types.TelemetryEvent) string {
	channels := make([]string, 0, len(ev.Values))
	for channel := range ev.Values {
		channels = append(channels, channel)
	}
	sort.Strings(channels)

	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", ev.DeviceID, ev.Timestamp.UnixMilli(), strings.Join(channels, ","))))
	return hex.EncodeToString(h[:16])
}

func classifyBigQueryError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", ErrTransientWrite, err)
		case apiErr.Code == http.StatusBadRequest:
			return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
		return fmt.Errorf("%w: %v", ErrFatalWrite, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTransientWrite, err)
	}
	return fmt.Errorf("%w: %v", ErrFatalWrite, err)
}
