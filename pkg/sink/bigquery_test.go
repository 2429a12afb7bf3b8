package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/uva-clima/go-inmet/pkg/types"
)

func TestDedupInsertID_Deterministic(t *testing.T) {
	ev := types.TelemetryEvent{
		DeviceID:  "a701",
		Timestamp: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC),
		Values:    map[string]*float64{"temp_ar": f(25.5), "pressao": f(1013.2)},
	}
	assert.Equal(t, dedupInsertID(ev), dedupInsertID(ev))

	// The ID depends on the channel SET, not on map order or the readings.
	reordered := types.TelemetryEvent{
		DeviceID:  "a701",
		Timestamp: ev.Timestamp,
		Values:    map[string]*float64{"pressao": f(999.9), "temp_ar": nil},
	}
	assert.Equal(t, dedupInsertID(ev), dedupInsertID(reordered))
}

func TestDedupInsertID_DiscriminatesIdentity(t *testing.T) {
	base := types.TelemetryEvent{
		DeviceID:  "a701",
		Timestamp: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC),
		Values:    map[string]*float64{"temp_ar": f(25.5)},
	}

	otherDevice := base
	otherDevice.DeviceID = "a702"
	assert.NotEqual(t, dedupInsertID(base), dedupInsertID(otherDevice))

	otherTime := base
	otherTime.Timestamp = base.Timestamp.Add(time.Second)
	assert.NotEqual(t, dedupInsertID(base), dedupInsertID(otherTime))

	otherChannels := base
	otherChannels.Values = map[string]*float64{"temp_ar": f(25.5), "umidade": f(80)}
	assert.NotEqual(t, dedupInsertID(base), dedupInsertID(otherChannels))
}

func TestBigQueryRowSave_SkipsNilChannels(t *testing.T) {
	row := &bigqueryRow{
		DeviceName: "a701",
		Timestamp:  time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC),
		TempAr:     f(25.5),
		SourceKey:  "inmet/a701/2025/07/202507.csv",
		insertID:   "abc123",
	}

	values, insertID, err := row.Save()
	require.NoError(t, err)
	assert.Equal(t, "abc123", insertID)
	assert.Equal(t, bigquery.Value(25.5), values["temp_ar"])
	assert.NotContains(t, values, "umidade", "absent readings stay out of the payload")
	assert.Equal(t, bigquery.Value("a701"), values["device_name"])
}

func TestClassifyBigQueryError(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want error
	}{
		{name: "throttling is transient", err: &googleapi.Error{Code: 429}, want: ErrTransientWrite},
		{name: "backend error is transient", err: &googleapi.Error{Code: 503}, want: ErrTransientWrite},
		{name: "bad request is schema mismatch", err: &googleapi.Error{Code: 400}, want: ErrSchemaMismatch},
		{name: "permission denied is fatal", err: &googleapi.Error{Code: 403}, want: ErrFatalWrite},
		{name: "deadline exceeded is transient", err: context.DeadlineExceeded, want: ErrTransientWrite},
		{name: "anything else is fatal", err: errors.New("unexpected"), want: ErrFatalWrite},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, classifyBigQueryError(tc.err), tc.want)
		})
	}
}

func TestLoadBigQueryConfigFromEnv(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "inmet-project")
	t.Setenv("BQ_DATASET_ID", "telemetry")
	t.Setenv("BQ_TABLE_ID", "inmet_raw")
	t.Setenv("GCP_BQ_CREDENTIALS_FILE", "")

	cfg, err := LoadBigQueryConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "inmet-project", cfg.ProjectID)

	t.Setenv("BQ_DATASET_ID", "")
	_, err = LoadBigQueryConfigFromEnv()
	require.Error(t, err)
}
