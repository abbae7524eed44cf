// Package runtime defines the sandbox engine interface for forage-launch.
// The engine is treated as an opaque service: it creates holding containers,
// publishes their ports and runs commands inside them.
package runtime

import (
	"context"
	"io"
)

// ContainerStatus represents the state of a container
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusStopped  ContainerStatus = "stopped"
	StatusNotFound ContainerStatus = "not-found"
	StatusUnknown  ContainerStatus = "unknown"
)

// HoldCommand keeps a sandbox container alive so that commands can be
// exec'd into it one after another.
var HoldCommand = []string{"sleep", "infinity"}

// ContainerInfo holds information about a container
type ContainerInfo struct {
	Name      string
	Status    ContainerStatus
	StartedAt string
	IPAddress string
}

// ExecResult holds the result of executing a command in a container
type ExecResult struct {
	ExitCode int
	Output   string
}

// CreateOptions holds options for creating a container
type CreateOptions struct {
	Name         string
	Image        string
	WorkingDir   string
	ForwardPorts map[int]int       // host port -> container port
	BindAddress  string            // host address for forwarded ports; empty means all interfaces
	Network      string            // engine network to attach to; empty means the default
	Labels       map[string]string // engine labels used to find our containers again
	Start        bool              // Start immediately after creation
}

// ExecOptions holds options for executing a command in a container
type ExecOptions struct {
	WorkingDir string   // Working directory
	Env        []string // Environment variables
}

// Runtime is the interface that container backends must implement.
// All methods should be safe for concurrent use.
type Runtime interface {
	// Name returns the runtime identifier (e.g., "docker", "podman")
	Name() string

	// Create creates a new holding container
	Create(ctx context.Context, opts CreateOptions) error

	// Start starts an existing container
	Start(ctx context.Context, name string) error

	// Stop stops a running container
	Stop(ctx context.Context, name string) error

	// Destroy stops and removes a container. Missing containers are not an error.
	Destroy(ctx context.Context, name string) error

	// IsRunning checks if a container is currently running
	IsRunning(ctx context.Context, name string) (bool, error)

	// Status returns detailed status of a container
	Status(ctx context.Context, name string) (*ContainerInfo, error)

	// Exec executes a command inside a container and waits for it
	Exec(ctx context.Context, name string, command []string, opts ExecOptions) (*ExecResult, error)

	// ExecStream starts a command inside a container and returns its
	// combined stdout/stderr. Close reaps the command and returns its status.
	ExecStream(ctx context.Context, name string, command []string, opts ExecOptions) (io.ReadCloser, error)

	// List returns all containers managed by this runtime
	List(ctx context.Context) ([]*ContainerInfo, error)
}
