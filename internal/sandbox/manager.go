package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/port"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/runtime"
)

// Container labels set on every sandbox.
const (
	LabelManaged = "forage-launch"
	LabelKind    = "forage-launch.kind"
	LabelPort    = "forage-launch.port"
)

const defaultCleanupTimeout = 30 * time.Second

// Manager creates sandboxes, runs commands in them and tears them down.
// It is the only place a sandbox's port is returned to the pool.
type Manager struct {
	rt       runtime.Runtime
	pool     *port.Pool
	profiles config.Profiles

	image          string
	workDir        string
	bindAddress    string
	network        string
	cleanupTimeout time.Duration
	logger         *slog.Logger
	hooks          []func(*Sandbox, Reason)

	mu        sync.Mutex
	sandboxes map[string]*Sandbox
}

// NewManager creates a Manager.
func NewManager(rt runtime.Runtime, pool *port.Pool, profiles config.Profiles, opts ...Option) *Manager {
	m := &Manager{
		rt:             rt,
		pool:           pool,
		profiles:       profiles,
		image:          config.DefaultImage,
		workDir:        config.DefaultWorkDir,
		cleanupTimeout: defaultCleanupTimeout,
		logger:         logging.Logger,
		sandboxes:      make(map[string]*Sandbox),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Profiles returns the known project kinds.
func (m *Manager) Profiles() config.Profiles {
	return m.profiles
}

// WorkDir returns the directory commands run in.
func (m *Manager) WorkDir() string {
	return m.workDir
}

// Runtime returns the engine the manager drives.
func (m *Manager) Runtime() runtime.Runtime {
	return m.rt
}

// Create starts a holding container for kind with hostPort forwarded to the
// kind's application port. Create takes ownership of hostPort: if it fails,
// whatever was created is removed and the port is back in the pool before
// the error is returned.
func (m *Manager) Create(ctx context.Context, kind string, hostPort int) (*Sandbox, error) {
	profile, ok := m.profiles.Lookup(kind)
	if !ok {
		m.pool.Release(hostPort)
		return nil, errors.InvalidProjectKind(kind)
	}

	id := kind + "-" + uuid.NewString()[:8]
	if err := config.ValidateSandboxName(id); err != nil {
		m.pool.Release(hostPort)
		return nil, errors.InvalidField("kind", err.Error())
	}

	sb := newSandbox(id, kind, hostPort, profile.Port)
	log := m.logger.With("sandbox", id, "kind", kind, "port", hostPort)
	log.Debug("creating sandbox", "image", m.image, "containerPort", profile.Port)

	err := m.rt.Create(ctx, runtime.CreateOptions{
		Name:         id,
		Image:        m.image,
		WorkingDir:   m.workDir,
		ForwardPorts: map[int]int{hostPort: profile.Port},
		BindAddress:  m.bindAddress,
		Network:      m.network,
		Labels: map[string]string{
			LabelManaged: "1",
			LabelKind:    kind,
			LabelPort:    strconv.Itoa(hostPort),
		},
		Start: true,
	})
	if err != nil {
		cleanupCtx, cancel := m.cleanupContext(ctx)
		defer cancel()
		if derr := m.rt.Destroy(cleanupCtx, id); derr != nil {
			log.Warn("failed to remove partial sandbox", "error", derr)
		}
		m.pool.Release(hostPort)
		sb.finish(ReasonFailed)
		log.Error("sandbox creation failed", "error", err)
		return nil, errors.EngineError("create", err)
	}

	sb.setState(StateRunning)

	m.mu.Lock()
	m.sandboxes[id] = sb
	m.mu.Unlock()

	log.Info("sandbox created")
	return sb, nil
}

// Exec runs commandLine with sh -c inside the sandbox and returns its
// combined output. Closing the stream ends the command.
func (m *Manager) Exec(ctx context.Context, sb *Sandbox, commandLine string) (io.ReadCloser, error) {
	if !sb.Live() {
		return nil, errors.EngineError("exec", fmt.Errorf("sandbox %s is %s", sb.ID, sb.State()))
	}

	m.logger.Debug("exec", "sandbox", sb.ID, "command", commandLine)

	rc, err := m.rt.ExecStream(ctx, sb.ID, []string{"sh", "-c", commandLine}, runtime.ExecOptions{
		WorkingDir: m.workDir,
	})
	if err != nil {
		return nil, errors.EngineError("exec", err)
	}
	return rc, nil
}

// Get returns a live sandbox by id.
func (m *Manager) Get(id string) (*Sandbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sb, ok := m.sandboxes[id]
	if !ok {
		return nil, errors.SandboxNotFound(id)
	}
	return sb, nil
}

// List returns the live sandboxes, oldest first.
func (m *Manager) List() []*Sandbox {
	m.mu.Lock()
	list := make([]*Sandbox, 0, len(m.sandboxes))
	for _, sb := range m.sandboxes {
		list = append(list, sb)
	}
	m.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// Len returns the number of live sandboxes.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sandboxes)
}

// cleanupContext detaches from ctx's cancellation so teardown still runs
// when the request that triggered it has gone away.
func (m *Manager) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.cleanupTimeout)
}
