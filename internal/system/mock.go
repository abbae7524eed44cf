package system

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
)

// MockExecutor implements CommandExecutor for testing.
type MockExecutor struct {
	mu sync.Mutex

	// Commands records all executed commands for verification.
	Commands []MockCommand

	// Responses maps command patterns to responses.
	// Key format: "command arg1", falling back to "command".
	Responses map[string]MockResponse

	// DefaultResponse is used when no matching response is found.
	DefaultResponse MockResponse

	// StreamFunc, when set, produces the stream returned by Stream.
	// Otherwise the matching response's Output is streamed.
	StreamFunc func(name string, args []string) (io.ReadCloser, error)
}

// MockCommand records an executed command.
type MockCommand struct {
	Name   string
	Args   []string
	Stream bool
}

// String renders the command line the way a shell would show it.
func (c MockCommand) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// MockResponse defines the response for a command.
type MockResponse struct {
	Output []byte
	Err    error
}

// NewMockExecutor creates a new MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		Commands:  make([]MockCommand, 0),
		Responses: make(map[string]MockResponse),
	}
}

// AddResponse adds a response for a specific command pattern.
func (m *MockExecutor) AddResponse(pattern string, output []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[pattern] = MockResponse{Output: output, Err: err}
}

// lookup must be called with mu held.
func (m *MockExecutor) lookup(name string, args []string) MockResponse {
	key := name
	if len(args) > 0 {
		key = name + " " + args[0]
	}

	if resp, ok := m.Responses[key]; ok {
		return resp
	}
	if resp, ok := m.Responses[name]; ok {
		return resp
	}
	return m.DefaultResponse
}

func (m *MockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Commands = append(m.Commands, MockCommand{Name: name, Args: args})
	resp := m.lookup(name, args)
	return resp.Output, resp.Err
}

func (m *MockExecutor) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, MockCommand{Name: name, Args: args, Stream: true})
	fn := m.StreamFunc
	resp := m.lookup(name, args)
	m.mu.Unlock()

	if fn != nil {
		return fn(name, args)
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return io.NopCloser(bytes.NewReader(resp.Output)), nil
}

// LastCommand returns the most recently executed command.
func (m *MockExecutor) LastCommand() (MockCommand, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Commands) == 0 {
		return MockCommand{}, false
	}
	return m.Commands[len(m.Commands)-1], true
}

// CommandsFor returns every recorded command whose first argument is sub,
// e.g. CommandsFor("exec") for "docker exec ...".
func (m *MockExecutor) CommandsFor(sub string) []MockCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cmds []MockCommand
	for _, c := range m.Commands {
		if len(c.Args) > 0 && c.Args[0] == sub {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

// Reset clears all recorded commands.
func (m *MockExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Commands = make([]MockCommand, 0)
}
