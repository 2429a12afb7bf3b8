//go:build integration

package sink_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uva-clima/go-inmet/helpers/emulators"
	"github.com/uva-clima/go-inmet/pkg/sink"
	"github.com/uva-clima/go-inmet/pkg/types"
)

func fp(v float64) *float64 { return &v }

func TestPostgresLoader_AgainstContainer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool, url, teardown := emulators.SetupPostgresEmulator(t, ctx, emulators.GetDefaultPostgresConfig())
	defer teardown()

	loader, err := sink.NewPostgresLoader(ctx, &sink.PostgresConfig{
		DatabaseURL: url,
		Table:       "inmet_raw",
	}, zerolog.New(zerolog.NewConsoleWriter()))
	require.NoError(t, err)
	defer loader.Close()

	require.NoError(t, loader.EnsureSchema(ctx))

	rows := []types.TelemetryEvent{
		{
			DeviceID:  "a701",
			Timestamp: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC),
			Values:    map[string]*float64{"temp_ar": fp(25.5), "pressao": fp(1013.2)},
		},
		{
			DeviceID:  "a701",
			Timestamp: time.Date(2025, 7, 14, 13, 0, 0, 0, time.UTC),
			Values:    map[string]*float64{"temp_ar": fp(26.1)},
		},
	}
	sourceKey := "inmet/a701/2025/07/202507.csv"

	result, err := loader.Load(ctx, sink.NewLoadBatch(rows, sourceKey))
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.RowsWritten)

	// Re-loading the same object must be a no-op.
	result, err = loader.Load(ctx, sink.NewLoadBatch(rows, sourceKey))
	require.NoError(t, err)
	assert.Zero(t, result.RowsWritten)

	var count int64
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM inmet_raw").Scan(&count))
	assert.Equal(t, int64(2), count)

	var tempAr *float64
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT temp_ar FROM inmet_raw WHERE device_name = $1 AND ts = $2",
		"a701", time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)).Scan(&tempAr))
	require.NotNil(t, tempAr)
	assert.Equal(t, 25.5, *tempAr)

	// A row with a null channel stores a SQL NULL, not a zero.
	var pressao *float64
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT pressao FROM inmet_raw WHERE device_name = $1 AND ts = $2",
		"a701", time.Date(2025, 7, 14, 13, 0, 0, 0, time.UTC)).Scan(&pressao))
	assert.Nil(t, pressao)
}
