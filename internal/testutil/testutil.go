// Package testutil provides test utilities for integration tests
package testutil

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/port"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/runtime"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/sandbox"
)

// Exec roles, told apart by the command line.
const (
	RoleBuild  = "build"
	RoleTunnel = "tunnel"
)

// Exec is one ExecStream call observed by the mock runtime.
type Exec struct {
	Sandbox string
	Command string
	Stream  *Stream
}

// TestEnv holds the test environment
type TestEnv struct {
	T       testing.TB
	TmpDir  string
	Config  *config.Config
	Runtime *runtime.MockRuntime
	Pool    *port.Pool
	Manager *sandbox.Manager

	execs map[string]chan *Exec
}

// NewTestEnv creates a pool of size ports starting at 3005, a mock runtime
// whose exec streams are handed to the test, and a manager over both.
func NewTestEnv(t testing.TB, size int, opts ...sandbox.Option) *TestEnv {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := config.Defaults()
	cfg.StateDir = tmpDir
	cfg.Ports = config.PortRange{From: 3005, To: 3005 + size - 1}

	pool, err := port.NewPool(cfg.Ports.From, cfg.Ports.To)
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	env := &TestEnv{
		T:       t,
		TmpDir:  tmpDir,
		Config:  cfg,
		Runtime: runtime.NewMockRuntime(),
		Pool:    pool,
		execs: map[string]chan *Exec{
			RoleBuild:  make(chan *Exec, 32),
			RoleTunnel: make(chan *Exec, 32),
		},
	}

	env.Runtime.SetStreamFunc(func(name string, command []string) (io.ReadCloser, error) {
		line := strings.Join(command, " ")
		role := RoleBuild
		if strings.Contains(line, "cloudflared tunnel") {
			role = RoleTunnel
		}
		ex := &Exec{Sandbox: name, Command: line, Stream: NewStream()}
		env.execs[role] <- ex
		return ex.Stream, nil
	})

	opts = append([]sandbox.Option{
		sandbox.WithSandboxConfig(cfg.Sandbox),
		sandbox.WithCleanupTimeout(time.Second),
	}, opts...)
	env.Manager = sandbox.NewManager(env.Runtime, pool, cfg.Kinds, opts...)

	return env
}

// NextExec waits for the next exec of the given role.
func (e *TestEnv) NextExec(role string) *Exec {
	e.T.Helper()

	select {
	case ex := <-e.execs[role]:
		return ex
	case <-time.After(5 * time.Second):
		e.T.Fatalf("timed out waiting for %s exec", role)
		return nil
	}
}

// Eventually polls cond until it holds or the timeout passes.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s: %s", timeout, msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
