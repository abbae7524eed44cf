package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// sandboxNameRegex validates sandbox names.
// Names must start with a lowercase letter or digit, followed by lowercase letters, digits, underscores, or hyphens.
// Maximum length is 63 characters (common container name limit).
var sandboxNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// kindNameRegex validates project kind names used as profile keys.
var kindNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{0,31}$`)

// ValidateSandboxName checks if a sandbox name is valid.
// Valid names:
//   - Start with a lowercase letter or digit
//   - Contain only lowercase letters, digits, underscores, or hyphens
//   - Are between 1 and 63 characters long
func ValidateSandboxName(name string) error {
	if name == "" {
		return fmt.Errorf("sandbox name cannot be empty")
	}

	if !sandboxNameRegex.MatchString(name) {
		return fmt.Errorf("invalid sandbox name %q: must start with a lowercase letter or digit, contain only lowercase letters, digits, underscores, or hyphens, and be at most 63 characters", name)
	}

	return nil
}

var repoSchemes = map[string]bool{"https": true, "http": true, "git": true, "ssh": true}

// ValidateRepoURL checks that a repository URL is something git can clone
// and cannot be mistaken for a command-line option.
func ValidateRepoURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("repository URL cannot be empty")
	}
	if strings.HasPrefix(raw, "-") {
		return fmt.Errorf("repository URL must not start with '-'")
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return fmt.Errorf("repository URL must not contain whitespace")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed repository URL: %w", err)
	}
	if !repoSchemes[u.Scheme] {
		return fmt.Errorf("unsupported repository URL scheme %q (must be https, http, git, or ssh)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("repository URL has no host")
	}

	return nil
}

const (
	DefaultConfigDir       = "/etc/forage-launch"
	DefaultStateDir        = "/var/lib/forage-launch"
	DefaultListen          = ":3002"
	DefaultPortFrom        = 3005
	DefaultPortTo          = 3014
	DefaultImage           = "node:lts-alpine3.20"
	DefaultWorkDir         = "/app"
	DefaultContainerPrefix = "launch-"
	DefaultBindAddress     = "127.0.0.1"
	DefaultAdvertiseHost   = "localhost"
	DefaultTunnelPattern   = `https://[a-z0-9-]+\.trycloudflare\.com`
	DefaultTunnelTimeout   = 5 * time.Minute
	DefaultMonitorInterval = 30 * time.Second
	DefaultMaxLifetime     = 2 * time.Hour
	DefaultRateLimit       = 10
)

// Config is the forage-launch server configuration.
type Config struct {
	Listen   string        `toml:"listen" yaml:"listen"`
	StateDir string        `toml:"state_dir" yaml:"state_dir"`
	Ports    PortRange     `toml:"ports" yaml:"ports"`
	Sandbox  SandboxConfig `toml:"sandbox" yaml:"sandbox"`
	Tunnel   TunnelConfig  `toml:"tunnel" yaml:"tunnel"`
	Monitor  MonitorConfig `toml:"monitor" yaml:"monitor"`
	Server   ServerConfig  `toml:"server" yaml:"server"`
	Relay    RelayConfig   `toml:"relay" yaml:"relay"`
	Archive  ArchiveConfig `toml:"archive" yaml:"archive"`

	// Kinds adds or replaces project kind profiles. Built-in kinds not
	// mentioned here stay available.
	Kinds Profiles `toml:"kinds" yaml:"kinds"`
}

// PortRange is an inclusive range of host ports handed to sandboxes.
type PortRange struct {
	From int `toml:"from" yaml:"from"`
	To   int `toml:"to" yaml:"to"`
}

// Size returns the number of ports in the range.
func (r PortRange) Size() int {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// SandboxConfig controls how holding containers are created.
type SandboxConfig struct {
	Runtime         string `toml:"runtime" yaml:"runtime"` // docker, podman, or auto
	Image           string `toml:"image" yaml:"image"`
	WorkDir         string `toml:"workdir" yaml:"workdir"`
	ContainerPrefix string `toml:"container_prefix" yaml:"container_prefix"`
	BindAddress     string `toml:"bind_address" yaml:"bind_address"`
	AdvertiseHost   string `toml:"advertise_host" yaml:"advertise_host"`
	Network         string `toml:"network" yaml:"network"`
}

// MonitorConfig controls the background reaper.
type MonitorConfig struct {
	Interval    time.Duration `toml:"interval" yaml:"interval"`
	MaxLifetime time.Duration `toml:"max_lifetime" yaml:"max_lifetime"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	RateLimit   int      `toml:"rate_limit" yaml:"rate_limit"` // requests per minute per client, 0 disables
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
}

// RelayConfig configures optional forwarding of tunnel events to brokers.
// An empty address disables the corresponding relay.
type RelayConfig struct {
	Redis RedisRelayConfig `toml:"redis" yaml:"redis"`
	NSQ   NSQRelayConfig   `toml:"nsq" yaml:"nsq"`
	NATS  NATSRelayConfig  `toml:"nats" yaml:"nats"`
}

type RedisRelayConfig struct {
	Addr    string        `toml:"addr" yaml:"addr"`
	Channel string        `toml:"channel" yaml:"channel"`
	LastKey string        `toml:"last_key" yaml:"last_key"`
	TTL     time.Duration `toml:"ttl" yaml:"ttl"`
}

type NSQRelayConfig struct {
	Addr  string `toml:"addr" yaml:"addr"`
	Topic string `toml:"topic" yaml:"topic"`
}

type NATSRelayConfig struct {
	URL     string `toml:"url" yaml:"url"`
	Subject string `toml:"subject" yaml:"subject"`
}

// ArchiveConfig configures exec output archival to an S3-compatible store.
// An empty endpoint disables archival.
type ArchiveConfig struct {
	Endpoint  string `toml:"endpoint" yaml:"endpoint"`
	AccessKey string `toml:"access_key" yaml:"access_key"`
	SecretKey string `toml:"secret_key" yaml:"secret_key"`
	Bucket    string `toml:"bucket" yaml:"bucket"`
	Prefix    string `toml:"prefix" yaml:"prefix"`
	UseSSL    bool   `toml:"use_ssl" yaml:"use_ssl"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Listen:   DefaultListen,
		StateDir: DefaultStateDir,
		Ports:    PortRange{From: DefaultPortFrom, To: DefaultPortTo},
		Sandbox: SandboxConfig{
			Runtime:         "auto",
			Image:           DefaultImage,
			WorkDir:         DefaultWorkDir,
			ContainerPrefix: DefaultContainerPrefix,
			BindAddress:     DefaultBindAddress,
			AdvertiseHost:   DefaultAdvertiseHost,
		},
		Tunnel: DefaultTunnel(),
		Monitor: MonitorConfig{
			Interval:    DefaultMonitorInterval,
			MaxLifetime: DefaultMaxLifetime,
		},
		Server: ServerConfig{
			RateLimit:   DefaultRateLimit,
			CORSOrigins: []string{"*"},
		},
		Relay: RelayConfig{
			Redis: RedisRelayConfig{Channel: "forage-launch:events", LastKey: "forage-launch:last", TTL: time.Hour},
			NSQ:   NSQRelayConfig{Topic: "forage-launch-events"},
			NATS:  NATSRelayConfig{Subject: "forage.launch.events"},
		},
		Archive: ArchiveConfig{Bucket: "forage-launch", Prefix: "logs"},
		Kinds:   DefaultProfiles(),
	}
}

// Load reads a configuration file. The format is chosen by extension:
// .toml, .yaml or .yml. A missing file yields the defaults. Values absent
// from the file keep their default.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	builtin := cfg.Kinds
	cfg.Kinds = nil

	switch ext := strings.ToLower(filepath.Ext(configPath)); ext {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (use .toml, .yaml, or .yml)", ext)
	}

	cfg.Kinds = builtin.Merge(cfg.Kinds)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return cfg, nil
}

// Validate checks that the Config is usable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}

	if c.Ports.From <= 0 || c.Ports.To > 65535 || c.Ports.From > c.Ports.To {
		return fmt.Errorf("invalid port range %d-%d", c.Ports.From, c.Ports.To)
	}

	switch c.Sandbox.Runtime {
	case "", "auto", "docker", "podman":
	default:
		return fmt.Errorf("invalid sandbox.runtime %q (must be auto, docker, or podman)", c.Sandbox.Runtime)
	}
	if c.Sandbox.Image == "" {
		return fmt.Errorf("sandbox.image is required")
	}
	if !path.IsAbs(c.Sandbox.WorkDir) {
		return fmt.Errorf("sandbox.workdir must be an absolute path (got %q)", c.Sandbox.WorkDir)
	}
	if c.Sandbox.ContainerPrefix == "" {
		return fmt.Errorf("sandbox.container_prefix is required")
	}

	if len(c.Kinds) == 0 {
		return fmt.Errorf("at least one project kind is required")
	}
	for name, p := range c.Kinds {
		if !kindNameRegex.MatchString(name) {
			return fmt.Errorf("invalid kind name %q", name)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("kind %s: %w", name, err)
		}
	}

	if err := c.Tunnel.Validate(); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}

	if c.Monitor.Interval < 0 || c.Monitor.MaxLifetime < 0 {
		return fmt.Errorf("monitor durations must not be negative")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}

	if ttl := c.Relay.Redis.TTL; ttl != 0 && ttl < time.Second {
		return fmt.Errorf("relay.redis.ttl must be 0 or at least 1s (got %s)", ttl)
	}

	if c.Archive.Endpoint != "" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive.endpoint is set")
	}

	return nil
}

// Paths holds the directories derived from the state dir
type Paths struct {
	StateDir string
	AuditDir string
}

// Paths returns the configured paths
func (c *Config) Paths() *Paths {
	return &Paths{
		StateDir: c.StateDir,
		AuditDir: filepath.Join(c.StateDir, "audit"),
	}
}

// DefaultConfigPath returns the config file used when none is given.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir, "config.toml")
}
