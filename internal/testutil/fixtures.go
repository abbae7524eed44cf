package testutil

import (
	"embed"
	"os"
	"path/filepath"
	"testing"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
)

//go:embed fixtures/*
var fixturesFS embed.FS

// LoadFixture loads a fixture file by name.
func LoadFixture(name string) ([]byte, error) {
	return fixturesFS.ReadFile("fixtures/" + name)
}

// LoadConfigFixture copies a config fixture into a temp dir and loads it
// with config.Load, so the extension picks the decoder.
func LoadConfigFixture(t testing.TB, name string) (*config.Config, error) {
	t.Helper()

	data, err := LoadFixture(name)
	if err != nil {
		t.Fatalf("LoadFixture(%q) failed: %v", name, err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return config.Load(path)
}

// CloudflaredLog returns captured cloudflared quick tunnel output.
func CloudflaredLog() []byte {
	data, err := LoadFixture("cloudflared.log")
	if err != nil {
		panic(err)
	}
	return data
}

// CloudflaredURL is the endpoint announced in CloudflaredLog.
const CloudflaredURL = "https://quiet-river-fancy-lamp.trycloudflare.com"
