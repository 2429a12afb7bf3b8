package emulators

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresConfig configures the throwaway Postgres container.
type PostgresConfig struct {
	ImageContainer
	Database string
	User     string
	Password string
}

// GetDefaultPostgresConfig returns the Postgres setup the sink's integration
// tests run against.
func GetDefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		ImageContainer: ImageContainer{
			EmulatorImage:    "postgres:16-alpine",
			EmulatorHTTPPort: "5432",
		},
		Database: "inmet_test",
		User:     "inmet",
		Password: "inmet",
	}
}

// SetupPostgresEmulator starts Postgres and returns a connected pool plus the
// connection URL. The returned func tears everything down.
func SetupPostgresEmulator(t *testing.T, ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, string, func()) {
	t.Helper()

	port := fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort)
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{port},
		Env: map[string]string{
			"POSTGRES_DB":       cfg.Database,
			"POSTGRES_USER":     cfg.User,
			"POSTGRES_PASSWORD": cfg.Password,
		},
		WaitingFor: wait.ForListeningPort(nat.Port(port)).WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User, cfg.Password, host, mappedPort.Port(), cfg.Database)

	var pool *pgxpool.Pool
	require.Eventually(t, func() bool {
		pool, err = pgxpool.New(ctx, url)
		if err != nil {
			return false
		}
		if pingErr := pool.Ping(ctx); pingErr != nil {
			pool.Close()
			return false
		}
		return true
	}, 30*time.Second, time.Second, "postgres did not become ready")

	return pool, url, func() {
		pool.Close()
		require.NoError(t, container.Terminate(ctx))
	}
}
