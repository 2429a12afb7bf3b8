package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "dial tcp: connection refused" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

func TestClassifyPostgresError(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "unique violation is fatal",
			err:  &pgconn.PgError{Code: "23505"},
			want: ErrFatalWrite,
		},
		{
			name: "not null violation is fatal",
			err:  &pgconn.PgError{Code: "23502"},
			want: ErrFatalWrite,
		},
		{
			name: "connection failure is transient",
			err:  &pgconn.PgError{Code: "08006"},
			want: ErrTransientWrite,
		},
		{
			name: "too many connections is transient",
			err:  &pgconn.PgError{Code: "53300"},
			want: ErrTransientWrite,
		},
		{
			name: "admin shutdown is transient",
			err:  &pgconn.PgError{Code: "57P01"},
			want: ErrTransientWrite,
		},
		{
			name: "serialization failure is transient",
			err:  &pgconn.PgError{Code: "40001"},
			want: ErrTransientWrite,
		},
		{
			name: "undefined table is fatal",
			err:  &pgconn.PgError{Code: "42P01"},
			want: ErrFatalWrite,
		},
		{
			name: "network error is transient",
			err:  fakeNetError{},
			want: ErrTransientWrite,
		},
		{
			name: "deadline exceeded is transient",
			err:  context.DeadlineExceeded,
			want: ErrTransientWrite,
		},
		{
			name: "anything else is fatal",
			err:  errors.New("driver panic"),
			want: ErrFatalWrite,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyPostgresError(tc.err)
			require.ErrorIs(t, got, tc.want)
		})
	}
}

func TestLoadPostgresConfigFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://user:pw@localhost:5432/inmet")
	t.Setenv("POSTGRES_TABLE", "")

	cfg, err := LoadPostgresConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "inmet_raw", cfg.Table, "table name defaults when unset")

	t.Setenv("POSTGRES_TABLE", "inmet_custom")
	cfg, err = LoadPostgresConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "inmet_custom", cfg.Table)

	t.Setenv("POSTGRES_URL", "")
	_, err = LoadPostgresConfigFromEnv()
	require.Error(t, err)
}
