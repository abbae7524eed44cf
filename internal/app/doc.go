// Package app assembles forage-launch's service graph.
//
// New builds every component from a config.Config using the functional
// options pattern, enabling easy testing through dependency injection:
//
//	// Production usage
//	a, err := app.New(ctx, cfg)
//
//	// Testing with custom dependencies
//	a, err := app.New(ctx, cfg,
//	    app.WithRuntime(runtime.NewMockRuntime()),
//	    app.WithRelays(fakeSink),
//	)
//
// Wiring done here:
//
//	port pool changes       -> metrics ports_in_use
//	observer count changes  -> metrics observers
//	sandbox teardowns       -> audit "teardown" events and metrics
//	[relay] section         -> broadcast observers for Redis, NSQ, NATS
//	[archive] section       -> MinIO archival of exec output
//	[monitor] section       -> reaper for dead and expired sandboxes
package app
