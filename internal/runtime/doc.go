// Package runtime provides a unified interface for the sandbox engine.
//
// Supported engines:
//   - docker: Docker Engine or Docker Desktop
//   - podman: rootless Podman (preferred when both are installed)
//
// Both are driven through their CLI, so no daemon socket access is needed
// beyond what the CLI itself has.
//
// # Runtime Interface
//
// The Runtime interface defines the operations the sandbox manager needs:
//   - Create, Start, Stop, Destroy: Container lifecycle
//   - IsRunning, Status: Container state queries
//   - Exec: Buffered command execution
//   - ExecStream: Long-running commands whose output is consumed live
//   - List: Enumerate all managed containers
//
// Sandboxes are created around HoldCommand ("sleep infinity") so that the
// install, build, run and tunnel commands can all be exec'd into the same
// container.
//
// # Mock Runtime
//
// For testing, use NewMockRuntime() to create a mock implementation that can
// be configured with expected responses and exec streams, and used to verify
// the calls that were made.
package runtime
