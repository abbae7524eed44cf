// Package system provides abstractions for OS operations to enable testing.
package system

import (
	"context"
	"io"
)

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Execute runs a command and returns its combined output.
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)

	// Stream starts a command and returns its combined stdout and stderr as
	// a live stream. Reads return io.EOF once the process has exited and all
	// output has been consumed. Close reaps the process, killing it first if
	// it is still running, and returns its exit status.
	Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error)
}

var defaultExecutor CommandExecutor = &osExecutor{}

// DefaultExecutor returns the default CommandExecutor implementation.
func DefaultExecutor() CommandExecutor {
	return defaultExecutor
}

// SetDefaultExecutor sets the default CommandExecutor (useful for testing).
func SetDefaultExecutor(exec CommandExecutor) {
	defaultExecutor = exec
}

// ResetDefaults restores the default OS implementations.
func ResetDefaults() {
	defaultExecutor = &osExecutor{}
}
