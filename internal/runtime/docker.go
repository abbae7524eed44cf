package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/system"
)

// DockerRuntime implements the Runtime interface using Docker or Podman.
type DockerRuntime struct {
	// Command is the container command to use (docker or podman)
	Command string

	// ContainerPrefix is prepended to sandbox names to form container names
	ContainerPrefix string

	// Executor runs the engine CLI; nil means system.DefaultExecutor()
	Executor system.CommandExecutor
}

// NewDockerRuntime creates a new Docker/Podman runtime.
// It auto-detects which command is available.
func NewDockerRuntime(containerPrefix string) (*DockerRuntime, error) {
	rt, err := New(&Config{Type: RuntimeAuto, ContainerPrefix: containerPrefix})
	if err != nil {
		return nil, err
	}
	return rt.(*DockerRuntime), nil
}

// containerName returns the full container name for a sandbox
func (r *DockerRuntime) containerName(sandboxName string) string {
	return r.ContainerPrefix + sandboxName
}

func (r *DockerRuntime) executor() system.CommandExecutor {
	if r.Executor != nil {
		return r.Executor
	}
	return system.DefaultExecutor()
}

// Name returns the runtime identifier
func (r *DockerRuntime) Name() string {
	return r.Command
}

// runCmd executes a docker/podman command
func (r *DockerRuntime) runCmd(ctx context.Context, args ...string) (string, error) {
	out, err := r.executor().Execute(ctx, r.Command, args...)
	if err != nil {
		return "", fmt.Errorf("%s %s failed: %s: %w", r.Command, args[0], strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

// createArgs builds the argument list for "create". Map-valued options are
// emitted in sorted order so the command line is stable.
func (r *DockerRuntime) createArgs(opts CreateOptions) []string {
	args := []string{"create", "--name", r.containerName(opts.Name)}

	labelKeys := make([]string, 0, len(opts.Labels))
	for k := range opts.Labels {
		labelKeys = append(labelKeys, k)
	}
	sort.Strings(labelKeys)
	for _, k := range labelKeys {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, opts.Labels[k]))
	}

	if opts.WorkingDir != "" {
		args = append(args, "-w", opts.WorkingDir)
	}

	hostPorts := make([]int, 0, len(opts.ForwardPorts))
	for hostPort := range opts.ForwardPorts {
		hostPorts = append(hostPorts, hostPort)
	}
	sort.Ints(hostPorts)
	for _, hostPort := range hostPorts {
		containerPort := opts.ForwardPorts[hostPort]
		if opts.BindAddress != "" {
			args = append(args, "-p", fmt.Sprintf("%s:%d:%d", opts.BindAddress, hostPort, containerPort))
		} else {
			args = append(args, "-p", fmt.Sprintf("%d:%d", hostPort, containerPort))
		}
	}

	if opts.Network != "" {
		args = append(args, "--network", opts.Network)
	}

	args = append(args, opts.Image)
	args = append(args, HoldCommand...)
	return args
}

// Create creates a new holding container
func (r *DockerRuntime) Create(ctx context.Context, opts CreateOptions) error {
	if opts.Image == "" {
		return fmt.Errorf("image is required")
	}

	containerName := r.containerName(opts.Name)
	logging.Debug("creating container", "name", containerName, "runtime", r.Command, "image", opts.Image)

	if _, err := r.runCmd(ctx, r.createArgs(opts)...); err != nil {
		return err
	}

	if opts.Start {
		return r.Start(ctx, opts.Name)
	}

	return nil
}

// Start starts an existing container
func (r *DockerRuntime) Start(ctx context.Context, name string) error {
	containerName := r.containerName(name)
	logging.Debug("starting container", "container", containerName)

	_, err := r.runCmd(ctx, "start", containerName)
	return err
}

// Stop stops a running container
func (r *DockerRuntime) Stop(ctx context.Context, name string) error {
	containerName := r.containerName(name)
	logging.Debug("stopping container", "container", containerName)

	_, err := r.runCmd(ctx, "stop", containerName)
	return err
}

// Destroy stops and removes a container
func (r *DockerRuntime) Destroy(ctx context.Context, name string) error {
	containerName := r.containerName(name)
	logging.Debug("destroying container", "container", containerName)

	// rm -f kills a running container, so no separate stop is needed
	_, err := r.runCmd(ctx, "rm", "-f", containerName)
	if err != nil && isNoSuchContainer(err) {
		return nil
	}

	return err
}

// isNoSuchContainer reports whether err is the engine saying the container
// does not exist. docker inspect says "No such object", podman and docker rm
// say "no such container".
func isNoSuchContainer(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such container") ||
		strings.Contains(msg, "no such object")
}

// IsRunning checks if a container is currently running
func (r *DockerRuntime) IsRunning(ctx context.Context, name string) (bool, error) {
	containerName := r.containerName(name)

	output, err := r.runCmd(ctx, "inspect", "-f", "{{.State.Running}}", containerName)
	if err != nil {
		if isNoSuchContainer(err) {
			return false, nil
		}
		return false, err
	}

	return strings.TrimSpace(output) == "true", nil
}

// dockerInspect holds the relevant fields from docker inspect
type dockerInspect struct {
	State struct {
		Status    string `json:"Status"`
		Running   bool   `json:"Running"`
		StartedAt string `json:"StartedAt"`
	} `json:"State"`
	NetworkSettings struct {
		IPAddress string `json:"IPAddress"`
	} `json:"NetworkSettings"`
}

// Status returns detailed status of a container
func (r *DockerRuntime) Status(ctx context.Context, name string) (*ContainerInfo, error) {
	containerName := r.containerName(name)

	info := &ContainerInfo{
		Name:   name,
		Status: StatusNotFound,
	}

	output, err := r.runCmd(ctx, "inspect", containerName)
	if err != nil {
		return info, nil
	}

	var inspects []dockerInspect
	if err := json.Unmarshal([]byte(output), &inspects); err != nil {
		return info, nil
	}

	if len(inspects) == 0 {
		return info, nil
	}

	inspect := inspects[0]
	switch inspect.State.Status {
	case "running":
		info.Status = StatusRunning
	case "exited", "stopped", "created", "dead":
		info.Status = StatusStopped
	default:
		info.Status = StatusUnknown
	}

	info.StartedAt = inspect.State.StartedAt
	info.IPAddress = inspect.NetworkSettings.IPAddress

	return info, nil
}

func (r *DockerRuntime) execArgs(name string, command []string, opts ExecOptions) []string {
	args := []string{"exec"}

	if opts.WorkingDir != "" {
		args = append(args, "-w", opts.WorkingDir)
	}

	for _, env := range opts.Env {
		args = append(args, "-e", env)
	}

	args = append(args, r.containerName(name))
	return append(args, command...)
}

// Exec executes a command inside a container
func (r *DockerRuntime) Exec(ctx context.Context, name string, command []string, opts ExecOptions) (*ExecResult, error) {
	out, err := r.executor().Execute(ctx, r.Command, r.execArgs(name, command, opts)...)

	result := &ExecResult{Output: string(out)}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return result, fmt.Errorf("exec failed: %w", err)
		}
	}

	return result, nil
}

// ExecStream starts a command inside a container and returns its combined output
func (r *DockerRuntime) ExecStream(ctx context.Context, name string, command []string, opts ExecOptions) (io.ReadCloser, error) {
	logging.Debug("exec stream", "container", r.containerName(name), "command", command)

	rc, err := r.executor().Stream(ctx, r.Command, r.execArgs(name, command, opts)...)
	if err != nil {
		return nil, fmt.Errorf("%s exec failed: %w", r.Command, err)
	}
	return rc, nil
}

// List returns all containers managed by this runtime
func (r *DockerRuntime) List(ctx context.Context) ([]*ContainerInfo, error) {
	output, err := r.runCmd(ctx, "ps", "-a", "--format", "{{.Names}}", "--filter", fmt.Sprintf("name=%s", r.ContainerPrefix))
	if err != nil {
		return nil, err
	}

	var containers []*ContainerInfo
	lines := strings.Split(strings.TrimSpace(output), "\n")

	for _, name := range lines {
		if name == "" || !strings.HasPrefix(name, r.ContainerPrefix) {
			continue
		}

		// Strip prefix to get sandbox name
		sandboxName := strings.TrimPrefix(name, r.ContainerPrefix)

		info, _ := r.Status(ctx, sandboxName)
		if info != nil {
			containers = append(containers, info)
		}
	}

	return containers, nil
}

// Ensure DockerRuntime implements Runtime
var _ Runtime = (*DockerRuntime)(nil)
