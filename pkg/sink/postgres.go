package sink

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/uva-clima/go-inmet/pkg/types"
)

// schemaSQL is embedded so the loader can bootstrap its own table.
//
//go:embed schema.sql
var schemaSQL string

// PostgresConfig holds configuration for the Postgres loader.
type PostgresConfig struct {
	DatabaseURL string
	Table       string
}

// LoadPostgresConfigFromEnv reads the loader configuration from environment
// variables.
func LoadPostgresConfigFromEnv() (*PostgresConfig, error) {
	cfg := &PostgresConfig{
		DatabaseURL: os.Getenv("POSTGRES_URL"),
		Table:       os.Getenv("POSTGRES_TABLE"),
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("POSTGRES_URL environment variable not set")
	}
	if cfg.Table == "" {
		cfg.Table = "inmet_raw"
	}
	return cfg, nil
}

// PostgresLoader implements RowLoader on a pgx connection pool. Idempotence
// comes from the unique (device_name, ts) index: re-loading the same source
// object hits ON CONFLICT DO NOTHING and writes nothing new.
type PostgresLoader struct {
	pool   *pgxpool.Pool
	table  string
	logger zerolog.Logger
}

// NewPostgresLoader connects a pool and fails fast when the destination is
// unreachable; an unreachable sink at startup is a configuration error.
func NewPostgresLoader(ctx context.Context, cfg *PostgresConfig, logger zerolog.Logger) (*PostgresLoader, error) {
	if cfg == nil {
		return nil, errors.New("postgres config cannot be nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return &PostgresLoader{
		pool:   pool,
		table:  cfg.Table,
		logger: logger.With().Str("component", "PostgresLoader").Logger(),
	}, nil
}

// EnsureSchema applies schema.sql. Safe to run repeatedly.
func (l *PostgresLoader) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, schemaSQL)
	return err
}

// Load inserts the batch. Rows whose dedup key already exists are skipped by
// the database, so RowsWritten counts only genuinely new rows.
func (l *PostgresLoader) Load(ctx context.Context, batch *LoadBatch) (LoadResult, error) {
	if err := validateColumns(batch); err != nil {
		batch.Status = StatusFailed
		return LoadResult{}, err
	}
	if len(batch.Rows) == 0 {
		batch.Status = StatusLoaded
		return LoadResult{}, nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (device_name, ts, temp_ar, umidade, radiacao, vento_vel, precipitacao, pressao, source_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (device_name, ts) DO NOTHING`, l.table)

	sourceKey := strings.Join(batch.SourceKeys, ",")
	pgBatch := &pgx.Batch{}
	for _, row := range batch.Rows {
		args := make([]any, 0, 9)
		args = append(args, row.DeviceID, row.Timestamp.UTC())
		for _, channel := range types.Channels {
			args = append(args, row.Values[channel])
		}
		args = append(args, sourceKey)
		pgBatch.Queue(query, args...)
	}

	results := l.pool.SendBatch(ctx, pgBatch)
	var written int64
	for range batch.Rows {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			batch.Status = StatusFailed
			return LoadResult{}, classifyPostgresError(err)
		}
		written += tag.RowsAffected()
	}
	if err := results.Close(); err != nil {
		batch.Status = StatusFailed
		return LoadResult{}, classifyPostgresError(err)
	}

	batch.Status = StatusLoaded
	l.logger.Info().
		Str("batch_id", batch.ID).
		Int("batch_size", len(batch.Rows)).
		Int64("rows_written", written).
		Msg("Batch loaded into Postgres")
	return LoadResult{RowsWritten: written}, nil
}

// Close shuts down the connection pool.
func (l *PostgresLoader) Close() error {
	l.pool.Close()
	return nil
}

// classifyPostgresError sorts driver failures into the retryable and
// non-retryable halves of the taxonomy.
func classifyPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		class := ""
		if len(pgErr.Code) >= 2 {
			class = pgErr.Code[:2]
		}
		switch class {
		case "23": // integrity constraint violation
			return fmt.Errorf("%w: %v", ErrFatalWrite, err)
		case "08", "53", "57": // connection, resources, operator intervention
			return fmt.Errorf("%w: %v", ErrTransientWrite, err)
		}
		if pgErr.Code == "40001" { // serialization failure
			return fmt.Errorf("%w: %v", ErrTransientWrite, err)
		}
		return fmt.Errorf("%w: %v", ErrFatalWrite, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTransientWrite, err)
	}
	return fmt.Errorf("%w: %v", ErrFatalWrite, err)
}
