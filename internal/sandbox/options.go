package sandbox

import (
	"log/slog"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
)

// Option configures a Manager.
type Option func(*Manager)

// WithSandboxConfig applies the [sandbox] section of the server config.
func WithSandboxConfig(cfg config.SandboxConfig) Option {
	return func(m *Manager) {
		if cfg.Image != "" {
			m.image = cfg.Image
		}
		if cfg.WorkDir != "" {
			m.workDir = cfg.WorkDir
		}
		m.bindAddress = cfg.BindAddress
		m.network = cfg.Network
	}
}

// WithImage sets the container image.
func WithImage(image string) Option {
	return func(m *Manager) {
		m.image = image
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTeardownHook registers fn to run after every teardown, once the port
// has been released.
func WithTeardownHook(fn func(sb *Sandbox, reason Reason)) Option {
	return func(m *Manager) {
		m.hooks = append(m.hooks, fn)
	}
}

// WithCleanupTimeout bounds the engine calls made during teardown.
func WithCleanupTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.cleanupTimeout = d
		}
	}
}
