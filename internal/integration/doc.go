// Package integration provides a test harness for integration tests
// that require a real container engine.
//
// Integration tests are skipped unless the FORAGE_INTEGRATION_TESTS
// environment variable is set. These tests require:
//   - docker or podman on PATH (FORAGE_RUNTIME selects one)
//   - The sandbox image (FORAGE_INTEGRATION_IMAGE overrides the default)
//   - Free host ports in IntegrationPorts
//
// # Test Harness
//
// TestHarness wires the full service graph over the real engine:
//
//	func TestMyIntegration(t *testing.T) {
//	    h := integration.NewHarness(t) // Skips if env var not set
//
//	    sb := h.CreateSandbox("vite")
//	    out, err := h.ExecOutput(sb, "node --version")
//
//	    // Cleanup is automatic via t.Cleanup
//	}
//
// # Harness Features
//
// The harness provides:
//   - Isolated state directory and a dedicated container prefix
//   - Sandbox creation and exec helpers
//   - Port readiness waiting (WaitForPort)
//   - Teardown of every sandbox and leftover container on cleanup
//
// # Running Integration Tests
//
//	FORAGE_INTEGRATION_TESTS=1 go test -v ./internal/integration/...
//
// TestServer_Provision clones a real repository and additionally needs
// FORAGE_INTEGRATION_REPO.
package integration
