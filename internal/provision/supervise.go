package provision

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/broadcast"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/sandbox"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/scanner"
)

// Stream names, used in logs, audit details and archive keys.
const (
	streamBuild  = "build"
	streamTunnel = "tunnel"
)

// stream is an exec output whose Close may be called both by its reader
// at EOF and by the supervisor on teardown.
type stream struct {
	name string
	rc   io.ReadCloser
	once sync.Once
	err  error
}

func (s *stream) Read(p []byte) (int, error) {
	return s.rc.Read(p)
}

func (s *stream) Close() error {
	s.once.Do(func() {
		s.err = s.rc.Close()
	})
	return s.err
}

// streamEnd is how an exec stream finished: read is a broken stream, exit
// the command's exit status.
type streamEnd struct {
	name string
	read error
	exit error
}

func (e streamEnd) clean() bool {
	return e.read == nil && e.exit == nil
}

// supervise owns a running request until both of its streams end, then
// tears the sandbox down.
func (c *Coordinator) supervise(ctx context.Context, r *request, build, tunnel io.ReadCloser) {
	defer c.wg.Done()
	defer c.untrack(r)

	sb := r.sb
	log := c.logger.With("sandbox", sb.ID, "kind", sb.Kind, "port", sb.Port)

	ends := make(chan streamEnd, 2)
	bs := &stream{name: streamBuild, rc: build}
	streams := []*stream{bs}
	go func() { ends <- c.drain(ctx, sb, bs) }()

	var timeout <-chan time.Time
	if tunnel != nil {
		ts := &stream{name: streamTunnel, rc: tunnel}
		streams = append(streams, ts)
		go func() { ends <- c.watch(ctx, r, ts) }()

		if c.tunnel.Timeout > 0 {
			timer := time.NewTimer(c.tunnel.Timeout)
			defer timer.Stop()
			timeout = timer.C
		}
	} else {
		c.resolve(r, "")
	}

	failed := false
	torndown := sb.Done()
	for open := len(streams); open > 0; {
		select {
		case end := <-ends:
			open--
			if !sb.Live() {
				continue
			}
			if !end.clean() {
				failed = true
			}
			c.streamEnded(ctx, r, end)

		case <-timeout:
			timeout = nil
			c.failPending(ctx, r, sandbox.ReasonTimeout, errors.TunnelTimeout(c.tunnel.Timeout))

		case <-torndown:
			torndown = nil
			for _, s := range streams {
				s.Close()
			}
			c.failPending(ctx, r, sb.Reason(), tornDown(sb))
		}
	}

	if sb.Live() {
		reason := sandbox.ReasonCompleted
		if failed {
			reason = sandbox.ReasonFailed
		}
		if !c.failPending(ctx, r, reason, errors.EngineError("run", fmt.Errorf("all streams ended before resolution"))) {
			c.teardown(ctx, r, reason)
		}
	} else {
		c.failPending(ctx, r, sb.Reason(), tornDown(sb))
	}

	final := StateCompleted
	if sb.State() == sandbox.StateFailed {
		final = StateFailed
	}
	r.setState(final)
	c.record(audit.EventComplete, sb, string(final))
	log.Info("request finished", "state", final, "reason", sb.Reason())
}

func tornDown(sb *sandbox.Sandbox) error {
	return errors.EngineError("run", fmt.Errorf("sandbox torn down: %s", sb.Reason()))
}

// streamEnded applies the rules for one stream finishing while the sandbox
// is still live.
func (c *Coordinator) streamEnded(ctx context.Context, r *request, end streamEnd) {
	sb := r.sb
	log := c.logger.With("sandbox", sb.ID, "stream", end.name)

	if end.read != nil {
		log.Warn("exec stream broke", "error", errors.StreamError(end.name, end.read))
	}
	if end.exit != nil {
		log.Info("exec exited", "error", end.exit)
	}

	switch end.name {
	case streamBuild:
		if end.exit != nil {
			c.fail(ctx, r, sandbox.ReasonFailed, errors.EngineError(streamBuild, end.exit))
			return
		}
		log.Info("build stream ended")

	case streamTunnel:
		var err error
		switch {
		case end.read != nil:
			err = errors.StreamError(streamTunnel, end.read)
		case end.exit != nil:
			err = errors.EngineError(streamTunnel, end.exit)
		default:
			err = errors.EngineError(streamTunnel, fmt.Errorf("stream ended without announcing an endpoint"))
		}
		if !c.failPending(ctx, r, sandbox.ReasonFailed, err) {
			log.Info("tunnel stream ended", "clean", end.clean())
		}
	}
}

// drain consumes the build/run output, archiving it when configured.
func (c *Coordinator) drain(ctx context.Context, sb *sandbox.Sandbox, s *stream) streamEnd {
	dst := io.Discard
	var archive io.WriteCloser
	if c.archiver != nil {
		archive = c.archiver.Writer(ctx, sb.ID, s.name)
		dst = archive
	}

	_, readErr := io.Copy(dst, s)
	exitErr := s.Close()
	if archive != nil {
		archive.Close()
	}
	return streamEnd{name: s.name, read: readErr, exit: exitErr}
}

// watch scans the tunnel output. Every endpoint is published; the first
// resolves the request.
func (c *Coordinator) watch(ctx context.Context, r *request, s *stream) streamEnd {
	sb := r.sb

	var src io.Reader = s
	var archive io.WriteCloser
	if c.archiver != nil {
		archive = c.archiver.Writer(ctx, sb.ID, s.name)
		src = io.TeeReader(s, archive)
	}

	sc := scanner.New(src, scanner.WithPattern(c.pattern))
	for ev := range sc.All() {
		c.metrics.TunnelEvent()
		c.publisher.Publish(broadcast.TunnelFound(ev.URL))
		c.record(audit.EventTunnel, sb, ev.URL)
		c.logger.Info("tunnel endpoint found", "sandbox", sb.ID, "url", ev.URL, "seq", ev.Seq)

		r.noteTunnel(ev.URL)
		c.resolve(r, ev.URL)
	}

	readErr := sc.Err()
	exitErr := s.Close()
	if archive != nil {
		archive.Close()
	}
	return streamEnd{name: s.name, read: readErr, exit: exitErr}
}
