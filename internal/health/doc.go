// Package health provides health check utilities for sandbox monitoring.
//
// A sandbox is healthy when its container is running and its application
// accepts connections on the forwarded host port.
//
// # Health Status
//
// Sandbox health is represented by Status:
//
//	StatusHealthy  - Container running, application port reachable
//	StatusStarting - Container running, application not listening yet
//	StatusStopped  - Container not running
//
// # Check Functions
//
//	health.CheckPort(host, port)         // TCP reachability
//	health.GetUptime(ctx, name, rt)      // Container uptime
//	result := health.Check(ctx, name, host, port, rt)
//	status := health.GetSummary(ctx, name, host, port, rt)
package health
