package provision

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/sandbox"
)

// DefaultKind is used when a request names no project kind.
const DefaultKind = "react"

// State is the position of a request in the provisioning state machine.
type State string

const (
	StateValidating      State = "validating"
	StatePortAcquired    State = "port-acquired"
	StateSandboxStarting State = "sandbox-starting"
	StateRunning         State = "running"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// Request asks for one repository to be built and run.
type Request struct {
	RepoURL string `json:"repoUrl"`
	Kind    string `json:"kind,omitempty"`
}

func (r Request) normalize() Request {
	r.RepoURL = strings.TrimSpace(r.RepoURL)
	r.Kind = strings.TrimSpace(r.Kind)
	if r.Kind == "" {
		r.Kind = DefaultKind
	}
	return r
}

// Validate checks r against the known kinds. It touches no resources.
func (r Request) Validate(profiles config.Profiles) error {
	if r.RepoURL == "" {
		return errors.MissingField("repoUrl")
	}
	if err := config.ValidateRepoURL(r.RepoURL); err != nil {
		return errors.InvalidField("repoUrl", err.Error())
	}
	if _, ok := profiles.Lookup(r.Kind); !ok {
		return errors.InvalidProjectKind(r.Kind)
	}
	return nil
}

// Result is what the caller of Provision gets back once the request
// resolves.
type Result struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Port      int    `json:"port"`
	Address   string `json:"address"`
	TunnelURL string `json:"tunnelUrl,omitempty"`
	Message   string `json:"message"`
}

// Status is a snapshot of an in-flight request.
type Status struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Port      int    `json:"port"`
	RepoURL   string `json:"repoUrl"`
	State     State  `json:"state"`
	TunnelURL string `json:"tunnelUrl,omitempty"`
}

// request tracks one provisioning from sandbox creation until both exec
// streams have ended.
type request struct {
	sb      *sandbox.Sandbox
	repoURL string

	mu        sync.Mutex
	state     State
	tunnelURL string

	// claimed is set by whoever gets to answer the caller; settled closes
	// once the answer is stored.
	claimed atomic.Bool
	settled chan struct{}
	result  *Result
	err     error
}

func newRequest(sb *sandbox.Sandbox, repoURL string) *request {
	return &request{
		sb:      sb,
		repoURL: repoURL,
		state:   StateSandboxStarting,
		settled: make(chan struct{}),
	}
}

func (r *request) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// noteTunnel records the first announced URL.
func (r *request) noteTunnel(url string) {
	r.mu.Lock()
	if r.tunnelURL == "" {
		r.tunnelURL = url
	}
	r.mu.Unlock()
}

func (r *request) status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		ID:        r.sb.ID,
		Kind:      r.sb.Kind,
		Port:      r.sb.Port,
		RepoURL:   r.repoURL,
		State:     r.state,
		TunnelURL: r.tunnelURL,
	}
}

// claim reserves the single answer to the caller. Only the goroutine that
// gets true may call deliver.
func (r *request) claim() bool {
	return r.claimed.CompareAndSwap(false, true)
}

func (r *request) deliver(res *Result, err error) {
	r.result = res
	r.err = err
	close(r.settled)
}
