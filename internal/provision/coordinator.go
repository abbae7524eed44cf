package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/broadcast"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/port"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/sandbox"
)

// Publisher receives every tunnel endpoint found in sandbox output.
type Publisher interface {
	Publish(ev broadcast.Event) int
}

// Archiver keeps a copy of exec output.
type Archiver interface {
	Writer(ctx context.Context, sandbox, stream string) io.WriteCloser
}

// Coordinator drives provisioning requests from validation to teardown.
type Coordinator struct {
	manager   *sandbox.Manager
	pool      *port.Pool
	publisher Publisher

	tunnel        config.TunnelConfig
	pattern       *regexp.Regexp
	advertiseHost string

	audit    *audit.Logger
	archiver Archiver
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	requests map[string]*request
	wg       sync.WaitGroup
}

// New creates a Coordinator. The port pool must be the one the manager
// releases into.
func New(manager *sandbox.Manager, pool *port.Pool, publisher Publisher, cfg *config.Config, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		manager:       manager,
		pool:          pool,
		publisher:     publisher,
		tunnel:        cfg.Tunnel,
		advertiseHost: cfg.Sandbox.AdvertiseHost,
		logger:        logging.Logger,
		requests:      make(map[string]*request),
	}
	if c.advertiseHost == "" {
		c.advertiseHost = config.DefaultAdvertiseHost
	}
	if c.tunnel.Enabled {
		re, err := c.tunnel.Regexp()
		if err != nil {
			return nil, errors.ConfigError("invalid tunnel pattern", err)
		}
		c.pattern = re
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Provision validates req, starts a sandbox for it and waits for it to
// resolve: with the first tunnel URL, or with the local address when
// tunnels are off. Once the sandbox exists it runs detached from ctx; if
// ctx ends first Provision returns ctx.Err() and the sandbox carries on.
func (c *Coordinator) Provision(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	req = req.normalize()

	res, err := c.provision(ctx, req)

	kind := req.Kind
	if _, ok := c.manager.Profiles().Lookup(kind); !ok {
		kind = "unknown"
	}
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = string(errors.GetKind(err))
	}
	c.metrics.ProvisionFinished(kind, outcome, time.Since(start))

	return res, err
}

func (c *Coordinator) provision(ctx context.Context, req Request) (*Result, error) {
	log := c.logger.With("kind", req.Kind)
	log.Debug("provisioning", "state", StateValidating, "repo", req.RepoURL)

	if err := req.Validate(c.manager.Profiles()); err != nil {
		log.Info("rejected request", "error", err)
		return nil, err
	}

	hostPort, err := c.pool.Acquire()
	if err != nil {
		log.Warn("rejected request", "error", err)
		return nil, errors.PoolExhausted(err)
	}
	log = log.With("port", hostPort)
	log.Debug("provisioning", "state", StatePortAcquired)

	bg := context.WithoutCancel(ctx)

	sb, err := c.manager.Create(bg, req.Kind, hostPort)
	if err != nil {
		return nil, err
	}
	log = log.With("sandbox", sb.ID)

	r := newRequest(sb, req.RepoURL)
	c.track(r)
	c.record(audit.EventRequest, sb, "repo="+req.RepoURL)
	c.record(audit.EventAcquire, sb, "")
	c.record(audit.EventCreate, sb, fmt.Sprintf("container port %d", sb.ContainerPort))

	profile, _ := c.manager.Profiles().Lookup(req.Kind)
	build, err := c.manager.Exec(bg, sb, profile.CommandLine(req.RepoURL, c.manager.WorkDir()))
	if err != nil {
		return nil, c.abort(bg, r, err)
	}
	c.record(audit.EventExec, sb, streamBuild)

	var tunnel io.ReadCloser
	if c.tunnel.Enabled {
		tunnel, err = c.manager.Exec(bg, sb, c.tunnel.CommandLine(sb.ContainerPort))
		if err != nil {
			build.Close()
			return nil, c.abort(bg, r, err)
		}
		c.record(audit.EventExec, sb, streamTunnel)
	}

	r.setState(StateRunning)
	log.Info("sandbox running", "tunnel", c.tunnel.Enabled)

	c.wg.Add(1)
	go c.supervise(bg, r, build, tunnel)

	select {
	case <-r.settled:
		return r.result, r.err
	case <-ctx.Done():
		log.Info("caller went away before resolution, sandbox keeps running")
		return nil, ctx.Err()
	}
}

// abort tears down a sandbox whose execs could not be issued. The request
// is marked failed only once the port is back in the pool.
func (c *Coordinator) abort(ctx context.Context, r *request, cause error) error {
	r.claim()
	c.teardown(ctx, r, sandbox.ReasonFailed)
	r.setState(StateFailed)
	c.record(audit.EventError, r.sb, cause.Error())
	c.untrack(r)
	return cause
}

// resolve answers the caller with the sandbox's address. Only the first
// call has any effect.
func (c *Coordinator) resolve(r *request, tunnelURL string) {
	if !r.claim() {
		return
	}

	sb := r.sb
	addr := net.JoinHostPort(c.advertiseHost, strconv.Itoa(sb.Port))
	access := "http://" + addr
	if tunnelURL != "" {
		access = tunnelURL
	}

	r.deliver(&Result{
		ID:        sb.ID,
		Kind:      sb.Kind,
		Port:      sb.Port,
		Address:   addr,
		TunnelURL: tunnelURL,
		Message:   "Container started and application running. Access it at " + access,
	}, nil)

	c.logger.Info("request resolved", "sandbox", sb.ID, "port", sb.Port, "address", addr, "tunnel", tunnelURL)
}

// failPending tears the sandbox down and then answers the caller with
// err. It does nothing and returns false when the caller already has an
// answer.
func (c *Coordinator) failPending(ctx context.Context, r *request, reason sandbox.Reason, err error) bool {
	if !r.claim() {
		return false
	}
	c.teardown(ctx, r, reason)
	r.setState(StateFailed)
	c.record(audit.EventError, r.sb, err.Error())
	c.logger.Warn("request failed", "sandbox", r.sb.ID, "port", r.sb.Port, "error", err)
	r.deliver(nil, err)
	return true
}

// fail tears the sandbox down whether or not the caller has been answered.
func (c *Coordinator) fail(ctx context.Context, r *request, reason sandbox.Reason, err error) {
	if c.failPending(ctx, r, reason, err) {
		return
	}
	if r.sb.Live() {
		c.logger.Warn("sandbox failed after resolution", "sandbox", r.sb.ID, "error", err)
	}
	c.teardown(ctx, r, reason)
}

func (c *Coordinator) teardown(ctx context.Context, r *request, reason sandbox.Reason) {
	if err := c.manager.Teardown(ctx, r.sb, reason); err != nil {
		c.logger.Warn("teardown incomplete", "sandbox", r.sb.ID, "error", err)
	}
}

func (c *Coordinator) record(t audit.EventType, sb *sandbox.Sandbox, details string) {
	if c.audit == nil {
		return
	}
	err := c.audit.Log(audit.Event{
		Type:    t,
		Sandbox: sb.ID,
		Port:    sb.Port,
		Details: details,
	})
	if err != nil {
		c.logger.Warn("failed to write audit event", "sandbox", sb.ID, "type", t, "error", err)
	}
}

func (c *Coordinator) track(r *request) {
	c.mu.Lock()
	c.requests[r.sb.ID] = r
	c.mu.Unlock()
}

func (c *Coordinator) untrack(r *request) {
	c.mu.Lock()
	delete(c.requests, r.sb.ID)
	c.mu.Unlock()
}

// Status returns the state of an in-flight request.
func (c *Coordinator) Status(id string) (Status, error) {
	c.mu.Lock()
	r, ok := c.requests[id]
	c.mu.Unlock()
	if !ok {
		return Status{}, errors.SandboxNotFound(id)
	}
	return r.status(), nil
}

// Active returns every in-flight request, oldest first.
func (c *Coordinator) Active() []Status {
	c.mu.Lock()
	list := make([]*request, 0, len(c.requests))
	for _, r := range c.requests {
		list = append(list, r)
	}
	c.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].sb.CreatedAt.Before(list[j].sb.CreatedAt)
	})
	out := make([]Status, len(list))
	for i, r := range list {
		out[i] = r.status()
	}
	return out
}

// Close tears down every sandbox and waits for their streams to finish.
func (c *Coordinator) Close(ctx context.Context) error {
	err := c.manager.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}
