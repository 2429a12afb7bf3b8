package emulators

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"
)

// GCSConfig configures the fake GCS emulator container.
type GCSConfig struct {
	GCImageContainer
	BaseBucket string
}

// GetDefaultGCSConfig returns the fake-gcs-server setup used by the raw
// layer's integration tests.
func GetDefaultGCSConfig(projectID, bucket string) GCSConfig {
	return GCSConfig{
		GCImageContainer: GCImageContainer{
			ImageContainer: ImageContainer{
				EmulatorImage:    "fsouza/fake-gcs-server:1.47.8",
				EmulatorHTTPPort: "4443",
			},
			ProjectID: projectID,
		},
		BaseBucket: bucket,
	}
}

// SetupGCSEmulator starts the emulator, points the storage client at it and
// creates the base bucket. The returned func tears everything down.
func SetupGCSEmulator(t *testing.T, ctx context.Context, cfg GCSConfig) (*storage.Client, func()) {
	t.Helper()

	httpPort := fmt.Sprintf("%s/tcp", cfg.EmulatorHTTPPort)
	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{httpPort},
		Cmd:          []string{"-scheme", "http"},
		WaitingFor: wait.ForHTTP("/storage/v1/b").WithPort(nat.Port(httpPort)).WithStatusCodeMatcher(
			func(status int) bool {
				return status > 0
			}).WithStartupTimeout(20 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	t.Setenv("STORAGE_EMULATOR_HOST", endpoint)

	client, err := storage.NewClient(ctx, option.WithoutAuthentication(), option.WithEndpoint(os.Getenv("STORAGE_EMULATOR_HOST")))
	require.NoError(t, err)

	require.NoError(t, client.Bucket(cfg.BaseBucket).Create(ctx, cfg.ProjectID, nil))

	return client, func() {
		client.Close()
		require.NoError(t, container.Terminate(ctx))
	}
}
