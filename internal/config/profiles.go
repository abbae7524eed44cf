package config

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// Profile maps a project kind to the port its application listens on inside
// the sandbox and the shell steps that install, build and run it.
type Profile struct {
	Port        int    `toml:"port" yaml:"port" json:"port"`
	Description string `toml:"description" yaml:"description" json:"description,omitempty"`
	Install     string `toml:"install" yaml:"install" json:"install,omitempty"`
	Build       string `toml:"build" yaml:"build" json:"build,omitempty"`
	Run         string `toml:"run" yaml:"run" json:"run"`
}

// Validate checks that the Profile is valid.
func (p Profile) Validate() error {
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (got %d)", p.Port)
	}
	if strings.TrimSpace(p.Run) == "" {
		return fmt.Errorf("run is required")
	}
	return nil
}

// setupSteps prepare a bare node image for cloning.
var setupSteps = []string{
	"npm cache clean --force",
	"apk add --no-cache git",
}

// CommandLine composes the single shell command that fetches repoURL into
// workDir and installs, builds and runs it. Caller supplied values are quoted.
func (p Profile) CommandLine(repoURL, workDir string) string {
	steps := append([]string{}, setupSteps...)
	steps = append(steps,
		"git clone -- "+shellquote.Join(repoURL, workDir),
		"cd "+shellquote.Join(workDir),
	)
	for _, step := range []string{p.Install, p.Build, p.Run} {
		if s := strings.TrimSpace(step); s != "" {
			steps = append(steps, s)
		}
	}
	return strings.Join(steps, " && ")
}

// Profiles is the set of known project kinds keyed by kind name.
type Profiles map[string]Profile

// DefaultProfiles returns the built-in project kinds.
func DefaultProfiles() Profiles {
	return Profiles{
		"react": {
			Port:        3000,
			Description: "React app served by next start",
			Install:     "npm install next && npm install",
			Build:       "npm run build",
			Run:         "npm start",
		},
		"next": {
			Port:        3000,
			Description: "Next.js app",
			Install:     "npm install",
			Build:       "npm run build",
			Run:         "npx next start -H 0.0.0.0 -p 3000",
		},
		"vite": {
			Port:        4173,
			Description: "Vite app served by vite preview",
			Install:     "npm install",
			Build:       "npm run build",
			Run:         "npx vite preview --host 0.0.0.0 --port 4173",
		},
	}
}

// Lookup returns the profile for kind.
func (ps Profiles) Lookup(kind string) (Profile, bool) {
	p, ok := ps[kind]
	return p, ok
}

// Kinds returns the kind names in sorted order.
func (ps Profiles) Kinds() []string {
	kinds := make([]string, 0, len(ps))
	for k := range ps {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Merge returns a copy of ps with overrides applied on top.
func (ps Profiles) Merge(overrides Profiles) Profiles {
	merged := make(Profiles, len(ps)+len(overrides))
	for k, v := range ps {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// TunnelConfig describes the tunnel process run next to the application.
type TunnelConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// Install fetches the tunnel client inside the sandbox. May be empty
	// when the image already ships it.
	Install string `toml:"install" yaml:"install"`

	// Command starts the tunnel. "{port}" is replaced with the
	// application's port inside the sandbox.
	Command string `toml:"command" yaml:"command"`

	// Pattern matches the public URL the tunnel client announces.
	Pattern string `toml:"pattern" yaml:"pattern"`

	// Timeout bounds how long a request waits for the first URL.
	Timeout time.Duration `toml:"timeout" yaml:"timeout"`
}

// DefaultTunnel returns a cloudflared quick tunnel setup.
func DefaultTunnel() TunnelConfig {
	return TunnelConfig{
		Enabled: true,
		Install: "wget -q -O /usr/local/bin/cloudflared https://github.com/cloudflare/cloudflared/releases/latest/download/cloudflared-linux-amd64 && chmod +x /usr/local/bin/cloudflared",
		Command: "cloudflared tunnel --no-autoupdate --url http://localhost:{port}",
		Pattern: DefaultTunnelPattern,
		Timeout: DefaultTunnelTimeout,
	}
}

// Validate checks that the TunnelConfig is valid.
func (t TunnelConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Command) == "" {
		return fmt.Errorf("command is required")
	}
	if _, err := t.Regexp(); err != nil {
		return err
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive (got %s)", t.Timeout)
	}
	return nil
}

// Regexp compiles the URL pattern.
func (t TunnelConfig) Regexp() (*regexp.Regexp, error) {
	if t.Pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	re, err := regexp.Compile(t.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return re, nil
}

// CommandLine composes the tunnel shell command for an application listening
// on containerPort.
func (t TunnelConfig) CommandLine(containerPort int) string {
	run := strings.ReplaceAll(t.Command, "{port}", strconv.Itoa(containerPort))
	if strings.TrimSpace(t.Install) == "" {
		return run
	}
	return t.Install + " && " + run
}
