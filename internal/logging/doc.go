// Package logging provides logging utilities for forage-launch.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via slog)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Debug logs are written using slog and controlled by verbosity settings:
//
//	logging.Debug("creating sandbox", "sandbox", id, "kind", kind)
//	logging.Warn("port released twice", "port", port)
//
// Setup installs a text or JSON handler and is called once from the root
// command:
//
//	logging.Setup(verbose, jsonOutput, os.Stderr)
//
// # User Output
//
// User-facing messages are formatted with status indicators:
//
//	logging.UserInfo("Provisioning %s (%s)...", repoURL, kind)
//	logging.UserSuccess("Sandbox %s running at %s", id, address)
//	logging.UserWarning("No tunnel URL announced for %s", id)
//	logging.UserError("Provisioning failed: %v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
//
// # Status Indicators
//
// User functions prepend status indicators:
//   - ℹ (info)
//   - ✓ (success)
//   - ⚠ (warning)
//   - ✗ (error)
package logging
