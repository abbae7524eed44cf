package sandbox

import (
	"sync"
	"time"
)

// State is the lifecycle state of a sandbox.
type State string

const (
	StateCreated State = "created"
	StateRunning State = "running"
	StateExited  State = "exited"
	StateFailed  State = "failed"
)

// Reason records why a sandbox was torn down.
type Reason string

const (
	ReasonCompleted  Reason = "completed"   // both exec streams ended cleanly
	ReasonFailed     Reason = "failed"      // an engine or stream failure
	ReasonTimeout    Reason = "timeout"     // no tunnel endpoint in time
	ReasonRequested  Reason = "requested"   // explicit teardown by an operator
	ReasonExpired    Reason = "expired"     // exceeded the maximum lifetime
	ReasonEngineExit Reason = "engine-exit" // the container stopped on its own
	ReasonShutdown   Reason = "shutdown"    // server shutting down
)

// failure reports whether a teardown for this reason ends in StateFailed.
func (r Reason) failure() bool {
	switch r {
	case ReasonFailed, ReasonTimeout, ReasonEngineExit:
		return true
	}
	return false
}

// Sandbox is one isolated environment bound to a host port.
type Sandbox struct {
	ID            string
	Kind          string
	Port          int // host port
	ContainerPort int // port the application binds inside the sandbox
	CreatedAt     time.Time

	mu      sync.Mutex
	state   State
	reason  Reason
	endedAt time.Time

	teardownOnce sync.Once
	done         chan struct{}
}

func newSandbox(id, kind string, hostPort, containerPort int) *Sandbox {
	return &Sandbox{
		ID:            id,
		Kind:          kind,
		Port:          hostPort,
		ContainerPort: containerPort,
		CreatedAt:     time.Now(),
		state:         StateCreated,
		done:          make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Sandbox) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason returns why the sandbox was torn down, or "" while it is live.
func (s *Sandbox) Reason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// EndedAt returns when teardown finished.
func (s *Sandbox) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// Done is closed when teardown has finished and the port is released.
func (s *Sandbox) Done() <-chan struct{} {
	return s.done
}

// Live reports whether the sandbox has not been torn down.
func (s *Sandbox) Live() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Uptime returns how long the sandbox has existed.
func (s *Sandbox) Uptime() time.Duration {
	if end := s.EndedAt(); !end.IsZero() {
		return end.Sub(s.CreatedAt)
	}
	return time.Since(s.CreatedAt)
}

func (s *Sandbox) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Sandbox) finish(reason Reason) {
	s.mu.Lock()
	s.reason = reason
	s.endedAt = time.Now()
	if reason.failure() {
		s.state = StateFailed
	} else {
		s.state = StateExited
	}
	s.mu.Unlock()
	close(s.done)
}
