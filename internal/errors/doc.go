// Package errors provides typed errors with exit codes and response statuses
// for forage-launch.
//
// # Error Types
//
// LaunchError is the base error type. It carries a Kind, which is the name
// API clients see, and an exit code derived from that kind:
//
//	type LaunchError struct {
//	    Code    int    // Exit code
//	    Kind    Kind   // Wire name, e.g. "PoolExhausted"
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Kinds
//
//	MissingField        400  exit 7   request field absent
//	InvalidField        400  exit 7   request field unusable
//	InvalidProjectKind  400  exit 3   no profile for the requested kind
//	PoolExhausted       503  exit 4   every port is allocated
//	EngineError         500  exit 5   create, start or exec failed
//	StreamError         500  exit 9   exec output closed unexpectedly
//	TunnelTimeout       504  exit 8   no public endpoint in time
//	SandboxNotFound     404  exit 2   unknown sandbox id
//	ConfigError         500  exit 6   bad configuration
//	Internal            500  exit 1   anything else
//
// # Error Constructors
//
// Use the provided constructors for consistent error creation:
//
//	errors.MissingField("repoUrl")
//	errors.InvalidProjectKind("svelte")
//	errors.PoolExhausted(err)
//	errors.EngineError("create", err)
//
// # Extracting Exit Codes
//
// Use GetExitCode to extract the exit code from an error chain:
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
//
// HTTPStatus does the same for response statuses on the server side.
package errors
