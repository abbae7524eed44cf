package testutil

import (
	"bytes"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/scanner"
)

func TestLoadConfigFixture_TOML(t *testing.T) {
	cfg, err := LoadConfigFixture(t, "config.toml")
	if err != nil {
		t.Fatalf("LoadConfigFixture() error: %v", err)
	}

	if cfg.Ports.From != 4005 || cfg.Ports.To != 4007 {
		t.Errorf("Ports = %+v, want 4005-4007", cfg.Ports)
	}
	if cfg.Sandbox.AdvertiseHost != "sandbox.example.com" {
		t.Errorf("AdvertiseHost = %q", cfg.Sandbox.AdvertiseHost)
	}
	if _, ok := cfg.Kinds.Lookup("astro"); !ok {
		t.Error("Kinds should contain astro")
	}
	if _, ok := cfg.Kinds.Lookup("react"); !ok {
		t.Error("built-in react kind should survive the merge")
	}
}

func TestLoadConfigFixture_YAML(t *testing.T) {
	cfg, err := LoadConfigFixture(t, "config.yaml")
	if err != nil {
		t.Fatalf("LoadConfigFixture() error: %v", err)
	}

	if cfg.Sandbox.Runtime != "podman" {
		t.Errorf("Runtime = %q, want podman", cfg.Sandbox.Runtime)
	}
	if cfg.Tunnel.Enabled {
		t.Error("tunnel should be disabled")
	}
	react, _ := cfg.Kinds.Lookup("react")
	if react.Install != "npm ci" {
		t.Errorf("react install = %q, want override", react.Install)
	}
}

func TestCloudflaredLog(t *testing.T) {
	s := scanner.New(bytes.NewReader(CloudflaredLog()))

	var urls []string
	for ev := range s.All() {
		urls = append(urls, ev.URL)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(urls) != 1 || urls[0] != CloudflaredURL {
		t.Errorf("urls = %v, want [%s]", urls, CloudflaredURL)
	}
}
