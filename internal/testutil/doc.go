// Package testutil provides test fixtures and utilities.
//
// # Environment
//
// NewTestEnv builds a port pool, a mock runtime and a sandbox manager. Every
// ExecStream call on the mock runtime returns a fresh Stream the test
// controls:
//
//	env := testutil.NewTestEnv(t, 1)
//	go coordinator.Provision(ctx, req)
//
//	tunnel := env.NextExec(testutil.RoleTunnel)
//	tunnel.Stream.Write("https://abc.trycloudflare.com\n")
//	tunnel.Stream.Finish(nil)
//
// # Fixtures
//
// Fixtures are embedded using go:embed:
//
//	fixtures/config.toml
//	fixtures/config.yaml
//	fixtures/cloudflared.log
//
//	cfg, err := testutil.LoadConfigFixture(t, "config.toml")
//	log := testutil.CloudflaredLog()
package testutil
