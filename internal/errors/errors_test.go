package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestLaunchError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *LaunchError
		wantMsg string
	}{
		{
			name:    "without cause",
			err:     New(KindInternal, "something went wrong"),
			wantMsg: "something went wrong",
		},
		{
			name:    "with cause",
			err:     Wrap(KindInternal, "operation failed", fmt.Errorf("underlying error")),
			wantMsg: "operation failed: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestLaunchError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(KindEngineError, "wrapped", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	// Without cause
	errNoCause := New(KindInternal, "no cause")
	if unwrapped := errNoCause.Unwrap(); unwrapped != nil {
		t.Errorf("Unwrap() = %v, want nil", unwrapped)
	}
}

func TestKindMappings(t *testing.T) {
	tests := []struct {
		kind       Kind
		wantCode   int
		wantStatus int
	}{
		{KindMissingField, ExitValidation, http.StatusBadRequest},
		{KindInvalidField, ExitValidation, http.StatusBadRequest},
		{KindInvalidProjectKind, ExitInvalidKind, http.StatusBadRequest},
		{KindPoolExhausted, ExitPortAllocation, http.StatusServiceUnavailable},
		{KindEngineError, ExitContainerFailed, http.StatusInternalServerError},
		{KindStreamError, ExitStreamError, http.StatusInternalServerError},
		{KindTunnelTimeout, ExitTunnelTimeout, http.StatusGatewayTimeout},
		{KindSandboxNotFound, ExitSandboxNotFound, http.StatusNotFound},
		{KindConfigError, ExitConfigError, http.StatusInternalServerError},
		{KindInternal, ExitGeneralError, http.StatusInternalServerError},
		{Kind("Bogus"), ExitGeneralError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := New(tt.kind, "test")
			if got := err.ExitCode(); got != tt.wantCode {
				t.Errorf("ExitCode() = %d, want %d", got, tt.wantCode)
			}
			if got := err.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestMissingField(t *testing.T) {
	err := MissingField("repoUrl")

	if err.Kind != KindMissingField {
		t.Errorf("Kind = %q, want %q", err.Kind, KindMissingField)
	}
	if err.Message != "repoUrl is required" {
		t.Errorf("Message = %q, want %q", err.Message, "repoUrl is required")
	}
}

func TestInvalidProjectKind(t *testing.T) {
	err := InvalidProjectKind("svelte")

	if err.Code != ExitInvalidKind {
		t.Errorf("Code = %d, want %d", err.Code, ExitInvalidKind)
	}
	if err.Message != `unknown project kind: "svelte"` {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestPoolExhausted(t *testing.T) {
	cause := fmt.Errorf("no ports available")
	err := PoolExhausted(cause)

	if err.Code != ExitPortAllocation {
		t.Errorf("Code = %d, want %d", err.Code, ExitPortAllocation)
	}
	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
}

func TestEngineError(t *testing.T) {
	cause := fmt.Errorf("docker create failed")
	err := EngineError("create", cause)

	if err.Code != ExitContainerFailed {
		t.Errorf("Code = %d, want %d", err.Code, ExitContainerFailed)
	}
	if err.Message != "sandbox create failed" {
		t.Errorf("Message = %q, want %q", err.Message, "sandbox create failed")
	}
	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
}

func TestTunnelTimeout(t *testing.T) {
	err := TunnelTimeout(90 * time.Second)

	if err.Kind != KindTunnelTimeout {
		t.Errorf("Kind = %q, want %q", err.Kind, KindTunnelTimeout)
	}
	if err.Message != "no tunnel endpoint announced within 1m30s" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "LaunchError",
			err:      SandboxNotFound("test"),
			wantCode: ExitSandboxNotFound,
		},
		{
			name:     "wrapped LaunchError",
			err:      fmt.Errorf("outer: %w", InvalidProjectKind("test")),
			wantCode: ExitInvalidKind,
		},
		{
			name:     "regular error",
			err:      fmt.Errorf("some error"),
			wantCode: ExitGeneralError,
		},
		{
			name:     "nil error",
			err:      nil,
			wantCode: ExitGeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.wantCode {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestGetKindAndStatus(t *testing.T) {
	wrapped := fmt.Errorf("provision: %w", PoolExhausted(nil))

	if got := GetKind(wrapped); got != KindPoolExhausted {
		t.Errorf("GetKind() = %q, want %q", got, KindPoolExhausted)
	}
	if got := HTTPStatus(wrapped); got != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus() = %d, want %d", got, http.StatusServiceUnavailable)
	}
	if !IsKind(wrapped, KindPoolExhausted) {
		t.Error("IsKind() should match wrapped kind")
	}

	plain := fmt.Errorf("plain")
	if got := GetKind(plain); got != KindInternal {
		t.Errorf("GetKind(plain) = %q, want %q", got, KindInternal)
	}
	if got := HTTPStatus(plain); got != http.StatusInternalServerError {
		t.Errorf("HTTPStatus(plain) = %d, want %d", got, http.StatusInternalServerError)
	}
	if IsKind(nil, KindInternal) {
		t.Error("IsKind(nil) should be false")
	}
}

func TestAs(t *testing.T) {
	launchErr := SandboxNotFound("test")
	wrapped := fmt.Errorf("wrapped: %w", launchErr)

	var target *LaunchError
	if !As(wrapped, &target) {
		t.Error("As() should return true for wrapped LaunchError")
	}

	if target.Code != ExitSandboxNotFound {
		t.Errorf("target.Code = %d, want %d", target.Code, ExitSandboxNotFound)
	}

	// Test with non-LaunchError
	regularErr := fmt.Errorf("regular error")
	if As(regularErr, &target) {
		t.Error("As() should return false for non-LaunchError")
	}
}

func TestErrorChaining(t *testing.T) {
	// Test that our errors work with standard error unwrapping
	root := fmt.Errorf("root cause")
	middle := Wrap(KindConfigError, "config error", root)
	outer := fmt.Errorf("operation failed: %w", middle)

	// Should be able to find root cause
	if !errors.Is(outer, root) {
		t.Error("errors.Is should find root cause")
	}
	if !Is(outer, root) {
		t.Error("Is should find root cause")
	}

	var launchErr *LaunchError
	if !errors.As(outer, &launchErr) {
		t.Error("errors.As should find LaunchError")
	}

	if launchErr.Code != ExitConfigError {
		t.Errorf("Code = %d, want %d", launchErr.Code, ExitConfigError)
	}
}
