// Package integration provides a test harness for integration tests
// that require a real container engine.
//
// Integration tests are skipped unless the FORAGE_INTEGRATION_TESTS
// environment variable is set. These tests require:
// - docker or podman on PATH (FORAGE_RUNTIME picks one, auto-detected otherwise)
// - The sandbox image, pulled or pullable
// - Free host ports in IntegrationPorts
package integration

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/runtime"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/sandbox"
)

// ContainerPrefix keeps integration containers apart from a live server's.
const ContainerPrefix = "launch-it-"

// IntegrationPorts is the host port range sandboxes publish on.
var IntegrationPorts = config.PortRange{From: 3905, To: 3909}

// TestHarness provides utilities for integration testing with real containers.
type TestHarness struct {
	t   *testing.T
	cfg *config.Config
	rt  runtime.Runtime
	app *app.App
}

// NewHarness creates a new test harness.
// It will skip the test if FORAGE_INTEGRATION_TESTS is not set.
func NewHarness(t *testing.T) *TestHarness {
	t.Helper()

	if os.Getenv("FORAGE_INTEGRATION_TESTS") == "" {
		t.Skip("integration tests disabled (set FORAGE_INTEGRATION_TESTS=1 to enable)")
	}

	rt, err := runtime.New(&runtime.Config{
		Type:            runtime.RuntimeType(os.Getenv("FORAGE_RUNTIME")),
		ContainerPrefix: ContainerPrefix,
	})
	if err != nil {
		t.Skipf("no container runtime available: %v", err)
	}

	// Quick check that the engine is responsive
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rt.List(ctx); err != nil {
		t.Skipf("%s not responsive: %v", rt.Name(), err)
	}

	h := &TestHarness{
		t:   t,
		cfg: DefaultConfig(t.TempDir()),
		rt:  rt,
	}
	t.Cleanup(h.Cleanup)

	return h
}

// DefaultConfig returns a config suitable for integration tests: tunnels
// disabled, integration ports and container prefix, state under dir.
func DefaultConfig(dir string) *config.Config {
	cfg := config.Defaults()
	cfg.StateDir = dir
	cfg.Ports = IntegrationPorts
	cfg.Sandbox.ContainerPrefix = ContainerPrefix
	cfg.Tunnel.Enabled = false
	if image := os.Getenv("FORAGE_INTEGRATION_IMAGE"); image != "" {
		cfg.Sandbox.Image = image
	}
	return cfg
}

// Config returns the test configuration.
func (h *TestHarness) Config() *config.Config {
	return h.cfg
}

// Runtime returns the container runtime.
func (h *TestHarness) Runtime() runtime.Runtime {
	return h.rt
}

// App builds the service graph over the real runtime on first use.
func (h *TestHarness) App() *app.App {
	h.t.Helper()

	if h.app != nil {
		return h.app
	}
	a, err := app.New(context.Background(), h.cfg,
		app.WithRuntime(h.rt),
		app.WithRelays(),
		app.WithManagerOptions(sandbox.WithCleanupTimeout(time.Minute)),
	)
	if err != nil {
		h.t.Fatalf("Failed to build app: %v", err)
	}
	h.app = a
	return a
}

// CreateSandbox acquires a port and creates a sandbox of kind.
func (h *TestHarness) CreateSandbox(kind string) *sandbox.Sandbox {
	h.t.Helper()

	a := h.App()
	p, err := a.Pool.Acquire()
	if err != nil {
		h.t.Fatalf("Failed to acquire port: %v", err)
	}
	sb, err := a.Manager.Create(context.Background(), kind, p)
	if err != nil {
		h.t.Fatalf("Failed to create %s sandbox: %v", kind, err)
	}
	return sb
}

// ExecOutput runs commandLine in sb and returns everything it printed.
func (h *TestHarness) ExecOutput(sb *sandbox.Sandbox, commandLine string) (string, error) {
	h.t.Helper()

	stream, err := h.App().Manager.Exec(context.Background(), sb, commandLine)
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(stream)
	if cerr := stream.Close(); err == nil {
		err = cerr
	}
	return string(out), err
}

// WaitForPort waits for something to accept connections on a host port.
func (h *TestHarness) WaitForPort(port int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		if health.CheckPort("127.0.0.1", port) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("port %d not reachable after %v", port, timeout)
		case <-ticker.C:
		}
	}
}

// RequireRunning fails the test if the named container is not running.
func (h *TestHarness) RequireRunning(name string) {
	h.t.Helper()

	running, err := h.rt.IsRunning(context.Background(), name)
	if err != nil {
		h.t.Fatalf("failed to check if %s is running: %v", name, err)
	}
	if !running {
		h.t.Fatalf("sandbox %s is not running", name)
	}
}

// Cleanup tears down every sandbox and removes leftover test containers.
func (h *TestHarness) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if h.app != nil {
		if err := h.app.Close(ctx); err != nil {
			h.t.Logf("Warning: teardown incomplete: %v", err)
		}
	}

	containers, err := h.rt.List(ctx)
	if err != nil {
		h.t.Logf("Warning: failed to list containers: %v", err)
		return
	}
	for _, c := range containers {
		if err := h.rt.Destroy(ctx, c.Name); err != nil {
			h.t.Logf("Warning: failed to destroy %s: %v", c.Name, err)
		}
	}
}
