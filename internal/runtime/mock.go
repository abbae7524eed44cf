package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MockRuntime is a mock implementation of Runtime for testing
type MockRuntime struct {
	mu sync.Mutex

	// Containers tracks the state of mock containers
	Containers map[string]*ContainerInfo

	// ExecResults maps container names to predefined exec results
	ExecResults map[string]*ExecResult

	// Errors allows injecting errors for specific operations
	Errors map[string]error

	// StreamFunc produces the stream returned by ExecStream. When nil,
	// ExecStream returns an empty stream.
	StreamFunc func(name string, command []string) (io.ReadCloser, error)

	// CallLog records all method calls for verification
	CallLog []MockCall
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Args   []interface{}
}

// NewMockRuntime creates a new mock runtime
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		Containers:  make(map[string]*ContainerInfo),
		ExecResults: make(map[string]*ExecResult),
		Errors:      make(map[string]error),
		CallLog:     make([]MockCall, 0),
	}
}

// record must be called with mu held.
func (m *MockRuntime) record(method string, args ...interface{}) {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Args: args})
}

// SetError sets an error to be returned for a specific operation
func (m *MockRuntime) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

// SetExecResult sets the result for exec operations on a container
func (m *MockRuntime) SetExecResult(name string, result *ExecResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecResults[name] = result
}

// SetStreamFunc sets the producer for ExecStream
func (m *MockRuntime) SetStreamFunc(fn func(name string, command []string) (io.ReadCloser, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StreamFunc = fn
}

// AddContainer adds a container to the mock
func (m *MockRuntime) AddContainer(name string, status ContainerStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Containers[name] = &ContainerInfo{
		Name:   name,
		Status: status,
	}
}

// SetStatus changes the status of an existing container, simulating the
// engine stopping it behind our back.
func (m *MockRuntime) SetStatus(name string, status ContainerStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Containers[name]; ok {
		c.Status = status
	}
}

// HasContainer reports whether the mock currently holds a container
func (m *MockRuntime) HasContainer(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Containers[name]
	return ok
}

// GetCalls returns all recorded calls
func (m *MockRuntime) GetCalls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]MockCall, len(m.CallLog))
	copy(calls, m.CallLog)
	return calls
}

// GetCallsFor returns all calls for a specific method
func (m *MockRuntime) GetCallsFor(method string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var calls []MockCall
	for _, call := range m.CallLog {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// Reset clears all state
func (m *MockRuntime) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Containers = make(map[string]*ContainerInfo)
	m.ExecResults = make(map[string]*ExecResult)
	m.Errors = make(map[string]error)
	m.StreamFunc = nil
	m.CallLog = make([]MockCall, 0)
}

// Name returns the runtime identifier
func (m *MockRuntime) Name() string {
	return "mock"
}

// Create creates a new container
func (m *MockRuntime) Create(ctx context.Context, opts CreateOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Create", opts)

	if err, ok := m.Errors["Create"]; ok {
		return err
	}

	status := StatusStopped
	if opts.Start {
		if err, ok := m.Errors["Start"]; ok {
			m.Containers[opts.Name] = &ContainerInfo{Name: opts.Name, Status: status}
			return err
		}
		status = StatusRunning
	}

	m.Containers[opts.Name] = &ContainerInfo{
		Name:   opts.Name,
		Status: status,
	}

	return nil
}

// Start starts an existing container
func (m *MockRuntime) Start(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Start", name)

	if err, ok := m.Errors["Start"]; ok {
		return err
	}

	if container, ok := m.Containers[name]; ok {
		container.Status = StatusRunning
		return nil
	}

	return fmt.Errorf("container not found: %s", name)
}

// Stop stops a running container
func (m *MockRuntime) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Stop", name)

	if err, ok := m.Errors["Stop"]; ok {
		return err
	}

	if container, ok := m.Containers[name]; ok {
		container.Status = StatusStopped
		return nil
	}

	return fmt.Errorf("container not found: %s", name)
}

// Destroy stops and removes a container
func (m *MockRuntime) Destroy(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Destroy", name)

	if err, ok := m.Errors["Destroy"]; ok {
		return err
	}

	delete(m.Containers, name)
	return nil
}

// IsRunning checks if a container is currently running
func (m *MockRuntime) IsRunning(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("IsRunning", name)

	if err, ok := m.Errors["IsRunning"]; ok {
		return false, err
	}

	if container, ok := m.Containers[name]; ok {
		return container.Status == StatusRunning, nil
	}

	return false, nil
}

// Status returns detailed status of a container
func (m *MockRuntime) Status(ctx context.Context, name string) (*ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Status", name)

	if err, ok := m.Errors["Status"]; ok {
		return nil, err
	}

	if container, ok := m.Containers[name]; ok {
		info := *container
		return &info, nil
	}

	return &ContainerInfo{Name: name, Status: StatusNotFound}, nil
}

// Exec executes a command inside a container
func (m *MockRuntime) Exec(ctx context.Context, name string, command []string, opts ExecOptions) (*ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Exec", name, command, opts)

	if err, ok := m.Errors["Exec"]; ok {
		return nil, err
	}

	if result, ok := m.ExecResults[name]; ok {
		return result, nil
	}

	return &ExecResult{ExitCode: 0}, nil
}

// ExecStream starts a command inside a container
func (m *MockRuntime) ExecStream(ctx context.Context, name string, command []string, opts ExecOptions) (io.ReadCloser, error) {
	m.mu.Lock()
	m.record("ExecStream", name, command, opts)
	err, failed := m.Errors["ExecStream"]
	fn := m.StreamFunc
	_, exists := m.Containers[name]
	m.mu.Unlock()

	if failed {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("container not found: %s", name)
	}
	if fn != nil {
		return fn(name, command)
	}
	return io.NopCloser(strings.NewReader("")), nil
}

// List returns all containers managed by this runtime
func (m *MockRuntime) List(ctx context.Context) ([]*ContainerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("List")

	if err, ok := m.Errors["List"]; ok {
		return nil, err
	}

	var containers []*ContainerInfo
	for _, container := range m.Containers {
		info := *container
		containers = append(containers, &info)
	}

	return containers, nil
}

// Ensure MockRuntime implements Runtime
var _ Runtime = (*MockRuntime)(nil)
