package runtime

import (
	"fmt"
	"os/exec"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/system"
)

// RuntimeType identifies which container engine to use
type RuntimeType string

const (
	RuntimeDocker RuntimeType = "docker"
	RuntimePodman RuntimeType = "podman"
	RuntimeAuto   RuntimeType = "auto"
)

// Config holds runtime configuration
type Config struct {
	// Type specifies which engine to use (or "auto" for auto-detection)
	Type RuntimeType

	// ContainerPrefix is prepended to sandbox names
	ContainerPrefix string

	// Executor runs engine commands; nil means the OS executor
	Executor system.CommandExecutor
}

// DefaultConfig returns the default runtime configuration
func DefaultConfig() *Config {
	return &Config{
		Type:            RuntimeAuto,
		ContainerPrefix: "launch-",
	}
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Detect determines which container engine is available on the system.
func Detect() (RuntimeType, error) {
	// Try podman (preferred for rootless)
	if _, err := lookPath("podman"); err == nil {
		logging.Debug("detected podman")
		return RuntimePodman, nil
	}

	// Try docker
	if _, err := lookPath("docker"); err == nil {
		logging.Debug("detected docker")
		return RuntimeDocker, nil
	}

	return "", fmt.Errorf("no supported container engine found (tried: podman, docker)")
}

// New creates a new Runtime based on the configuration.
// If Type is RuntimeAuto, it auto-detects the engine.
func New(cfg *Config) (Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	runtimeType := cfg.Type
	if runtimeType == "" || runtimeType == RuntimeAuto {
		detected, err := Detect()
		if err != nil {
			return nil, err
		}
		runtimeType = detected
	}

	logging.Debug("creating runtime", "type", runtimeType)

	switch runtimeType {
	case RuntimeDocker, RuntimePodman:
		return &DockerRuntime{
			Command:         string(runtimeType),
			ContainerPrefix: cfg.ContainerPrefix,
			Executor:        cfg.Executor,
		}, nil

	default:
		return nil, fmt.Errorf("unknown runtime type: %s", runtimeType)
	}
}

// Available returns a list of available engines on this system
func Available() []RuntimeType {
	var available []RuntimeType

	if _, err := lookPath("podman"); err == nil {
		available = append(available, RuntimePodman)
	}

	if _, err := lookPath("docker"); err == nil {
		available = append(available, RuntimeDocker)
	}

	return available
}
