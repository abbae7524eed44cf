// Package sandbox provides sandbox lifecycle management for forage-launch.
//
// A sandbox is a container started in a holding pattern (sleep infinity)
// with one host port from the pool forwarded to the port its project kind
// listens on. Commands are then run inside it with Exec, typically two at
// once: the clone/install/build/run chain and the tunnel client.
//
// # Manager
//
//	mgr := sandbox.NewManager(rt, pool, cfg.Kinds,
//	    sandbox.WithSandboxConfig(cfg.Sandbox))
//
//	p, _ := pool.Acquire()
//	sb, err := mgr.Create(ctx, "react", p)
//	if err != nil {
//	    return err // port already released
//	}
//	defer mgr.Teardown(ctx, sb, sandbox.ReasonCompleted)
//
//	out, err := mgr.Exec(ctx, sb, profile.CommandLine(repoURL, mgr.WorkDir()))
//
// # Ports
//
// Create takes ownership of the port it is given. From then on the port
// goes back to the pool exactly once: when Create fails, or on the first
// Teardown. Teardown releases the port even when the engine cannot remove
// the container.
//
// # States
//
// A sandbox moves from created to running once its container starts, and
// ends exited or failed depending on the teardown Reason.
package sandbox
