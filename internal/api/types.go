// Package api defines the JSON bodies exchanged by the forage-launch server
// and its clients.
package api

import "time"

// Routes served by the HTTP API.
const (
	PathRun       = "/run"
	PathEvents    = "/events"
	PathEventsWS  = "/events/ws"
	PathSandboxes = "/sandboxes"
	PathKinds     = "/kinds"
	PathHealth    = "/healthz"
	PathMetrics   = "/metrics"
)

// RunRequest asks the server to build and run a repository.
type RunRequest struct {
	RepoURL string `json:"repoUrl"`
	Kind    string `json:"kind,omitempty"`
}

// RunResponse is returned once the sandbox is reachable.
type RunResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Port      int    `json:"port"`
	Address   string `json:"address"`
	TunnelURL string `json:"tunnelUrl,omitempty"`
	Message   string `json:"message"`
}

// Sandbox describes a live sandbox.
type Sandbox struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Port      int       `json:"port"`
	State     string    `json:"state"`
	Request   string    `json:"request,omitempty"` // provisioning state while supervised
	RepoURL   string    `json:"repoUrl,omitempty"`
	TunnelURL string    `json:"tunnelUrl,omitempty"`
	Health    string    `json:"health"`
	CreatedAt time.Time `json:"createdAt"`
	Uptime    string    `json:"uptime"`
}

// Kind describes a project kind the server can run.
type Kind struct {
	Name        string `json:"name"`
	Port        int    `json:"port"`
	Description string `json:"description,omitempty"`
	Install     string `json:"install,omitempty"`
	Build       string `json:"build,omitempty"`
	Run         string `json:"run"`
}

// AuditEvent is one entry of a sandbox's lifecycle history.
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Sandbox   string    `json:"sandbox"`
	Port      int       `json:"port,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// Health summarises the server.
type Health struct {
	Status     string `json:"status"`
	Runtime    string `json:"runtime"`
	Sandboxes  int    `json:"sandboxes"`
	PortsFree  int    `json:"portsFree"`
	PortsTotal int    `json:"portsTotal"`
	Observers  int    `json:"observers"`
	Tunnel     bool   `json:"tunnel"`
}

// EventMessage is the payload pushed to event observers. A nil Message
// means no endpoint has been announced yet.
type EventMessage struct {
	Message *string `json:"message"`
}

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the error kind and describes it.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
