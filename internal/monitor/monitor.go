// Package monitor reaps sandboxes whose container has gone away or that
// have outlived their maximum lifetime.
package monitor

import (
	"context"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/sandbox"
)

// CheckResult holds the result of a single sandbox check.
type CheckResult struct {
	Sandbox string
	Running bool
	Reaped  sandbox.Reason // empty when the sandbox was left alone
}

// Monitor periodically checks every live sandbox.
type Monitor struct {
	interval    time.Duration
	maxLifetime time.Duration
	manager     *sandbox.Manager
	auditLog    *audit.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithMaxLifetime tears down sandboxes older than d. Zero disables the limit.
func WithMaxLifetime(d time.Duration) Option {
	return func(m *Monitor) {
		m.maxLifetime = d
	}
}

// WithAuditLogger sets the audit logger for recording reaps.
func WithAuditLogger(logger *audit.Logger) Option {
	return func(m *Monitor) {
		m.auditLog = logger
	}
}

// New creates a new Monitor.
func New(interval time.Duration, manager *sandbox.Manager, opts ...Option) *Monitor {
	m := &Monitor{
		interval: interval,
		manager:  manager,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the monitoring loop. It blocks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	logging.Debug("starting sandbox monitor", "interval", m.interval, "maxLifetime", m.maxLifetime)

	// Run an immediate check, then loop on interval.
	m.checkAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debug("sandbox monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// checkAll checks every live sandbox and tears down the ones that should
// not be running any more.
func (m *Monitor) checkAll(ctx context.Context) []CheckResult {
	rt := m.manager.Runtime()

	var results []CheckResult
	for _, sb := range m.manager.List() {
		if ctx.Err() != nil {
			break
		}

		running, err := rt.IsRunning(ctx, sb.ID)
		if err != nil {
			// The engine could not answer; try again next round.
			logging.Warn("monitor failed to query container", "sandbox", sb.ID, "error", err)
			continue
		}
		result := CheckResult{Sandbox: sb.ID, Running: running}

		switch {
		case !running:
			result.Reaped = sandbox.ReasonEngineExit
			m.record(audit.EventError, sb, "container no longer running")
		case m.maxLifetime > 0 && sb.Uptime() > m.maxLifetime:
			result.Reaped = sandbox.ReasonExpired
		}

		if result.Reaped != "" {
			logging.Info("reaping sandbox", "sandbox", sb.ID, "port", sb.Port, "reason", result.Reaped)
			if err := m.manager.Teardown(ctx, sb, result.Reaped); err != nil {
				logging.Warn("reap incomplete", "sandbox", sb.ID, "error", err)
			}
		}
		results = append(results, result)
	}

	return results
}

func (m *Monitor) record(t audit.EventType, sb *sandbox.Sandbox, details string) {
	if m.auditLog == nil {
		return
	}
	if err := m.auditLog.Log(audit.Event{Type: t, Sandbox: sb.ID, Port: sb.Port, Details: details}); err != nil {
		logging.Warn("failed to write audit event", "sandbox", sb.ID, "type", t, "error", err)
	}
}
