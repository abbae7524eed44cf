package provision

import (
	"log/slog"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/metrics"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithAudit records lifecycle events for every sandbox.
func WithAudit(logger *audit.Logger) Option {
	return func(c *Coordinator) {
		c.audit = logger
	}
}

// WithArchiver uploads a copy of both exec streams.
func WithArchiver(a Archiver) Option {
	return func(c *Coordinator) {
		c.archiver = a
	}
}

// WithMetrics sets the collectors updated per request.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}
