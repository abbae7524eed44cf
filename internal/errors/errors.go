package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Exit codes for forage-launch
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitSandboxNotFound = 2
	ExitInvalidKind     = 3
	ExitPortAllocation  = 4
	ExitContainerFailed = 5
	ExitConfigError     = 6
	ExitValidation      = 7
	ExitTunnelTimeout   = 8
	ExitStreamError     = 9
)

// Kind is the wire name of an error category. It is what API clients see in
// the "type" field of an error response.
type Kind string

const (
	KindMissingField       Kind = "MissingField"
	KindInvalidField       Kind = "InvalidField"
	KindInvalidProjectKind Kind = "InvalidProjectKind"
	KindPoolExhausted      Kind = "PoolExhausted"
	KindEngineError        Kind = "EngineError"
	KindStreamError        Kind = "StreamError"
	KindTunnelTimeout      Kind = "TunnelTimeout"
	KindSandboxNotFound    Kind = "SandboxNotFound"
	KindConfigError        Kind = "ConfigError"
	KindRateLimited        Kind = "RateLimited"
	KindInternal           Kind = "Internal"
)

var kindExitCodes = map[Kind]int{
	KindMissingField:       ExitValidation,
	KindInvalidField:       ExitValidation,
	KindInvalidProjectKind: ExitInvalidKind,
	KindPoolExhausted:      ExitPortAllocation,
	KindEngineError:        ExitContainerFailed,
	KindStreamError:        ExitStreamError,
	KindTunnelTimeout:      ExitTunnelTimeout,
	KindSandboxNotFound:    ExitSandboxNotFound,
	KindConfigError:        ExitConfigError,
	KindRateLimited:        ExitGeneralError,
	KindInternal:           ExitGeneralError,
}

var kindStatus = map[Kind]int{
	KindMissingField:       http.StatusBadRequest,
	KindInvalidField:       http.StatusBadRequest,
	KindInvalidProjectKind: http.StatusBadRequest,
	KindPoolExhausted:      http.StatusServiceUnavailable,
	KindEngineError:        http.StatusInternalServerError,
	KindStreamError:        http.StatusInternalServerError,
	KindTunnelTimeout:      http.StatusGatewayTimeout,
	KindSandboxNotFound:    http.StatusNotFound,
	KindConfigError:        http.StatusInternalServerError,
	KindRateLimited:        http.StatusTooManyRequests,
	KindInternal:           http.StatusInternalServerError,
}

// LaunchError is the base error type for forage-launch
type LaunchError struct {
	Code    int
	Kind    Kind
	Message string
	Cause   error
}

func (e *LaunchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *LaunchError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *LaunchError) ExitCode() int {
	return e.Code
}

// HTTPStatus returns the response status for this error
func (e *LaunchError) HTTPStatus() int {
	if status, ok := kindStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New creates a new LaunchError of the given kind
func New(kind Kind, message string) *LaunchError {
	return &LaunchError{
		Code:    exitCodeFor(kind),
		Kind:    kind,
		Message: message,
	}
}

// Wrap wraps an existing error with a LaunchError
func Wrap(kind Kind, message string, cause error) *LaunchError {
	return &LaunchError{
		Code:    exitCodeFor(kind),
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

func exitCodeFor(kind Kind) int {
	if code, ok := kindExitCodes[kind]; ok {
		return code
	}
	return ExitGeneralError
}

// Common error constructors

// MissingField returns an error for a required request field that was empty
func MissingField(field string) *LaunchError {
	return New(KindMissingField, fmt.Sprintf("%s is required", field))
}

// InvalidField returns an error for a request field with an unusable value
func InvalidField(field, reason string) *LaunchError {
	return New(KindInvalidField, fmt.Sprintf("invalid %s: %s", field, reason))
}

// InvalidProjectKind returns an error for an unknown project kind
func InvalidProjectKind(kind string) *LaunchError {
	return New(KindInvalidProjectKind, fmt.Sprintf("unknown project kind: %q", kind))
}

// PoolExhausted returns an error for port allocation failure
func PoolExhausted(cause error) *LaunchError {
	return Wrap(KindPoolExhausted, "no free port available", cause)
}

// EngineError returns an error for sandbox engine operations
func EngineError(op string, cause error) *LaunchError {
	return Wrap(KindEngineError, fmt.Sprintf("sandbox %s failed", op), cause)
}

// StreamError returns an error for an exec output stream that closed unexpectedly
func StreamError(stream string, cause error) *LaunchError {
	return Wrap(KindStreamError, fmt.Sprintf("%s stream failed", stream), cause)
}

// TunnelTimeout returns an error when no public endpoint was announced in time
func TunnelTimeout(after time.Duration) *LaunchError {
	return New(KindTunnelTimeout, fmt.Sprintf("no tunnel endpoint announced within %s", after))
}

// SandboxNotFound returns an error for a missing sandbox
func SandboxNotFound(id string) *LaunchError {
	return New(KindSandboxNotFound, fmt.Sprintf("sandbox not found: %s", id))
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *LaunchError {
	return Wrap(KindConfigError, message, cause)
}

// RateLimited returns an error for a client over its request budget
func RateLimited() *LaunchError {
	return New(KindRateLimited, "rate limit exceeded")
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		return launchErr.ExitCode()
	}
	return ExitGeneralError
}

// GetKind extracts the kind from an error, defaulting to KindInternal
func GetKind(err error) Kind {
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		return launchErr.Kind
	}
	return KindInternal
}

// HTTPStatus extracts the response status from an error
func HTTPStatus(err error) int {
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		return launchErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && GetKind(err) == kind
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join combines several errors into one, dropping nils
func Join(errs ...error) error {
	return errors.Join(errs...)
}
