// Package app assembles the provisioning service from its configuration.
// It allows dependency injection for testing.
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/archive"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/broadcast"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/monitor"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/port"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/provision"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/relay"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/runtime"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/sandbox"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/server"
)

// App holds the application dependencies
type App struct {
	Config      *config.Config
	Runtime     runtime.Runtime
	Pool        *port.Pool
	Manager     *sandbox.Manager
	Events      *broadcast.Broadcaster
	Coordinator *provision.Coordinator
	Audit       *audit.Logger
	Metrics     *metrics.Metrics
	Monitor     *monitor.Monitor

	// Relays forward tunnel events to brokers. Empty when none are configured.
	Relays []relay.Sink

	archiver    provision.Archiver
	relaysSet   bool
	logger      *slog.Logger
	managerOpts []sandbox.Option

	closeOnce sync.Once
	closeErr  error
}

// Option is a function that configures the App
type Option func(*App)

// WithRuntime sets a custom runtime
func WithRuntime(r runtime.Runtime) Option {
	return func(a *App) {
		a.Runtime = r
	}
}

// WithArchiver sets where exec output is archived, replacing the
// [archive] config section.
func WithArchiver(ar provision.Archiver) Option {
	return func(a *App) {
		a.archiver = ar
	}
}

// WithRelays sets the event relays, replacing the [relay] config section.
func WithRelays(sinks ...relay.Sink) Option {
	return func(a *App) {
		a.Relays = sinks
		a.relaysSet = true
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithManagerOptions passes extra options to the sandbox manager.
func WithManagerOptions(opts ...sandbox.Option) Option {
	return func(a *App) {
		a.managerOpts = append(a.managerOpts, opts...)
	}
}

// New builds the service graph for cfg. If runtime is not provided via
// WithRuntime, the engine named in cfg is used or auto-detected.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		Config: cfg,
		logger: logging.Logger,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.Runtime == nil {
		rt, err := runtime.New(&runtime.Config{
			Type:            runtime.RuntimeType(cfg.Sandbox.Runtime),
			ContainerPrefix: cfg.Sandbox.ContainerPrefix,
		})
		if err != nil {
			return nil, errors.ConfigError("failed to initialize container runtime", err)
		}
		a.Runtime = rt
	}

	pool, err := port.NewPool(cfg.Ports.From, cfg.Ports.To)
	if err != nil {
		return nil, errors.ConfigError("invalid port range", err)
	}
	a.Pool = pool

	a.Metrics = metrics.New()
	a.Metrics.SetPortsTotal(pool.Size())
	pool.OnChange(a.Metrics.SetPortsInUse)

	a.Audit = audit.NewLogger(cfg.Paths().AuditDir)

	managerOpts := append([]sandbox.Option{
		sandbox.WithSandboxConfig(cfg.Sandbox),
		sandbox.WithLogger(a.logger),
		sandbox.WithTeardownHook(a.recordTeardown),
	}, a.managerOpts...)
	a.Manager = sandbox.NewManager(a.Runtime, pool, cfg.Kinds, managerOpts...)

	a.Events = broadcast.New(
		broadcast.WithLogger(a.logger),
		broadcast.WithOnChange(a.Metrics.SetObservers),
	)

	if a.archiver == nil && cfg.Archive.Endpoint != "" {
		ar, err := archive.NewMinIO(cfg.Archive)
		if err != nil {
			return nil, errors.ConfigError("failed to create archive client", err)
		}
		if err := ar.EnsureBucket(ctx); err != nil {
			return nil, errors.ConfigError("archive bucket unavailable", err)
		}
		a.archiver = ar
		a.logger.Info("archiving exec output", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	if !a.relaysSet {
		sinks, err := relay.FromConfig(cfg.Relay)
		if err != nil {
			return nil, errors.ConfigError("failed to connect event relay", err)
		}
		a.Relays = sinks
	}
	for _, s := range a.Relays {
		relay.Attach(a.Events, s, a.logger)
	}

	coordOpts := []provision.Option{
		provision.WithAudit(a.Audit),
		provision.WithMetrics(a.Metrics),
		provision.WithLogger(a.logger),
	}
	if a.archiver != nil {
		coordOpts = append(coordOpts, provision.WithArchiver(a.archiver))
	}
	a.Coordinator, err = provision.New(a.Manager, pool, a.Events, cfg, coordOpts...)
	if err != nil {
		a.closeRelays()
		return nil, err
	}

	a.Monitor = monitor.New(cfg.Monitor.Interval, a.Manager,
		monitor.WithMaxLifetime(cfg.Monitor.MaxLifetime),
		monitor.WithAuditLogger(a.Audit),
	)

	return a, nil
}

func (a *App) recordTeardown(sb *sandbox.Sandbox, reason sandbox.Reason) {
	a.Metrics.Teardown(string(reason))
	err := a.Audit.Log(audit.Event{
		Type:    audit.EventTeardown,
		Sandbox: sb.ID,
		Port:    sb.Port,
		Details: string(reason),
	})
	if err != nil {
		a.logger.Warn("failed to write audit event", "sandbox", sb.ID, "error", err)
	}
}

// Backend returns the components the HTTP API serves.
func (a *App) Backend() server.Backend {
	return server.Backend{
		Coordinator: a.Coordinator,
		Manager:     a.Manager,
		Pool:        a.Pool,
		Events:      a.Events,
		Audit:       a.Audit,
		Metrics:     a.Metrics,
		Tunnel:      a.Config.Tunnel.Enabled,
	}
}

// RemoveOrphans destroys containers left behind by an earlier process.
// Sandboxes do not survive a restart, so any managed container the
// manager does not know about is an orphan.
func (a *App) RemoveOrphans(ctx context.Context) (int, error) {
	containers, err := a.Runtime.List(ctx)
	if err != nil {
		return 0, errors.EngineError("list", err)
	}

	removed := 0
	var errs []error
	for _, c := range containers {
		if _, err := a.Manager.Get(c.Name); err == nil {
			continue
		}
		if err := a.Runtime.Destroy(ctx, c.Name); err != nil {
			errs = append(errs, err)
			continue
		}
		a.logger.Info("removed orphaned container", "container", c.Name)
		removed++
	}
	return removed, errors.Join(errs...)
}

// Close tears down every sandbox, stops event delivery and disconnects
// the relays. Later calls return the first call's result.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeErr = a.Coordinator.Close(ctx)
		a.Events.Close()
		a.closeRelays()
	})
	return a.closeErr
}

func (a *App) closeRelays() {
	for _, s := range a.Relays {
		if err := s.Close(); err != nil {
			a.logger.Warn("failed to close relay", "relay", s.Name(), "error", err)
		}
	}
}
