package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestServer is a NATS server in a container for integration tests.
type TestServer struct {
	container testcontainers.Container
	URL       string
	cleanup   func()
}

type testConfig struct {
	natsVersion  string
	startTimeout time.Duration
}

// TestOption configures a TestServer
type TestOption func(*testConfig)

// WithNATSVersion specifies a specific NATS server version to use
func WithNATSVersion(version string) TestOption {
	return func(cfg *testConfig) {
		cfg.natsVersion = version
	}
}

// WithStartTimeout sets the container startup timeout
func WithStartTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) {
		cfg.startTimeout = timeout
	}
}

// NewTestServer starts a NATS container and terminates it when the test ends.
// Accepts testing.TB so it works with both *testing.T and *testing.B
func NewTestServer(t testing.TB, opts ...TestOption) *TestServer {
	t.Helper()

	cfg := &testConfig{
		natsVersion:  "2.11.7-alpine",
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "nats:" + cfg.natsVersion,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          []string{"--port", "4222", "--http_port", "8222"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	ts := &TestServer{
		container: container,
		URL:       fmt.Sprintf("nats://%s:%s", host, port.Port()),
	}
	ts.cleanup = func() {
		_ = container.Terminate(context.Background()) // Best effort test cleanup
	}
	t.Cleanup(func() { _ = ts.Terminate() })
	return ts
}

// Stop stops the container without removing it, simulating a broker outage.
func (ts *TestServer) Stop(ctx context.Context) error {
	timeout := 5 * time.Second
	return ts.container.Stop(ctx, &timeout)
}

// Terminate removes the container (usually handled by t.Cleanup)
func (ts *TestServer) Terminate() error {
	if ts.cleanup != nil {
		ts.cleanup()
		ts.cleanup = nil
	}
	return nil
}
