// Package provision turns a provisioning request into a running sandbox.
//
// A request moves through
//
//	validating -> port-acquired -> sandbox-starting -> running -> completed | failed
//
// Validation failures touch nothing. An exhausted pool rejects the request
// with no side effects. From the moment a port is acquired every failure
// ends in a teardown that returns the port before the error reaches the
// caller.
//
// # Resolution
//
// Two commands run in each sandbox: the clone/install/build/run chain and
// the tunnel client. The first endpoint the tunnel client prints answers
// the caller; every endpoint, including later ones, is published to the
// event broadcaster. With tunnels disabled the caller is answered with the
// local address as soon as both commands are running.
//
// The caller waits at most the tunnel timeout. On expiry the sandbox is
// torn down and the caller gets TunnelTimeout. If the build fails, or the
// tunnel client exits without printing an endpoint, the caller gets an
// EngineError after teardown.
//
// Once resolved, the sandbox lives until both streams end or it is torn
// down from outside (operator request, monitor, shutdown). A caller that
// goes away does not cancel anything.
//
//	coord, err := provision.New(mgr, pool, bc, cfg, provision.WithAudit(auditLog))
//	res, err := coord.Provision(ctx, provision.Request{
//	    RepoURL: "https://github.com/acme/site.git",
//	    Kind:    "vite",
//	})
package provision
