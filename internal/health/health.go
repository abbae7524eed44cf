package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/runtime"
)

// Status represents the health status of a sandbox
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusStarting Status = "starting"
	StatusStopped  Status = "stopped"

	// DialTimeout bounds a single port probe.
	DialTimeout = 500 * time.Millisecond
)

// CheckResult contains the results of health checks
type CheckResult struct {
	ContainerRunning bool
	PortReachable    bool
	Uptime           string
}

// CheckPort reports whether something accepts TCP connections on host:port.
func CheckPort(host string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), DialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// GetUptime returns the container uptime in human-readable format.
// Uses the runtime-agnostic Status method to get container start time.
func GetUptime(ctx context.Context, container string, rt runtime.Runtime) string {
	if rt == nil {
		return "unknown"
	}

	info, err := rt.Status(ctx, container)
	if err != nil || info == nil {
		return "unknown"
	}

	since := info.StartedAt
	if since == "" || since == "n/a" {
		return "unknown"
	}

	// Try common timestamp formats
	var t time.Time
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"Mon 2006-01-02 15:04:05 MST",
		"2006-01-02T15:04:05.000000000Z",
	}

	for _, format := range formats {
		if parsed, err := time.Parse(format, since); err == nil {
			t = parsed
			break
		}
	}

	if t.IsZero() {
		return since // Return raw value if can't parse
	}

	return FormatDuration(time.Since(t))
}

// FormatDuration renders d with at most two units.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// Check performs all health checks for a sandbox whose application is
// forwarded to host:port.
// The rt parameter is optional; if nil, container running check returns false.
func Check(ctx context.Context, container, host string, port int, rt runtime.Runtime) *CheckResult {
	result := &CheckResult{}

	if rt != nil {
		result.ContainerRunning, _ = rt.IsRunning(ctx, container)
	}
	if !result.ContainerRunning {
		return result
	}

	result.Uptime = GetUptime(ctx, container, rt)
	result.PortReachable = CheckPort(host, port)
	return result
}

// GetSummary returns a summary health status.
// The rt parameter is optional; if nil, returns StatusStopped.
func GetSummary(ctx context.Context, container, host string, port int, rt runtime.Runtime) Status {
	if rt == nil {
		return StatusStopped
	}
	running, _ := rt.IsRunning(ctx, container)
	if !running {
		return StatusStopped
	}
	if !CheckPort(host, port) {
		return StatusStarting
	}
	return StatusHealthy
}
