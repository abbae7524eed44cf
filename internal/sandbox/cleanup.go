package sandbox

import (
	"context"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
)

// Teardown destroys the sandbox's container and returns its port to the
// pool. Only the first call has any effect; later calls return nil. The
// port is released even when the engine fails to remove the container, and
// the release happens before Teardown returns.
func (m *Manager) Teardown(ctx context.Context, sb *Sandbox, reason Reason) error {
	var err error
	sb.teardownOnce.Do(func() {
		err = m.teardown(ctx, sb, reason)
	})
	return err
}

func (m *Manager) teardown(ctx context.Context, sb *Sandbox, reason Reason) error {
	log := m.logger.With("sandbox", sb.ID, "kind", sb.Kind, "port", sb.Port)
	log.Debug("tearing down sandbox", "reason", reason)

	cleanupCtx, cancel := m.cleanupContext(ctx)
	defer cancel()

	var destroyErr error
	if err := m.rt.Destroy(cleanupCtx, sb.ID); err != nil {
		log.Warn("failed to destroy container", "error", err)
		destroyErr = errors.EngineError("destroy", err)
	}

	m.pool.Release(sb.Port)

	m.mu.Lock()
	delete(m.sandboxes, sb.ID)
	m.mu.Unlock()

	sb.finish(reason)
	log.Info("sandbox torn down", "reason", reason, "state", sb.State(), "uptime", sb.Uptime().Round(time.Millisecond))

	for _, hook := range m.hooks {
		hook(sb, reason)
	}

	return destroyErr
}

// Shutdown tears down every live sandbox.
func (m *Manager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, sb := range m.List() {
		if err := m.Teardown(ctx, sb, ReasonShutdown); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
