// Package audit provides structured event logging for sandbox lifecycle events.
// Events are stored as JSON Lines (JSONL) files, one per sandbox.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventRequest  EventType = "request"
	EventAcquire  EventType = "acquire"
	EventCreate   EventType = "create"
	EventExec     EventType = "exec"
	EventTunnel   EventType = "tunnel"
	EventComplete EventType = "complete"
	EventTeardown EventType = "teardown"
	EventError    EventType = "error"
)

const eventSuffix = ".events.jsonl"

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Sandbox   string    `json:"sandbox"`
	Port      int       `json:"port,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// Logger writes and reads audit events for sandboxes.
// Events are stored in {dir}/{sandbox}.events.jsonl.
type Logger struct {
	dir string
	mu  sync.Mutex
}

// NewLogger creates a new audit logger writing under dir.
func NewLogger(dir string) *Logger {
	return &Logger{dir: dir}
}

// Dir returns the directory holding the logs.
func (l *Logger) Dir() string {
	return l.dir
}

// eventPath returns the path to the JSONL event log for a sandbox. The
// result always resolves inside the log directory.
func (l *Logger) eventPath(sandbox string) (string, error) {
	if sandbox == "" || strings.ContainsAny(sandbox, `/\`) {
		return "", fmt.Errorf("invalid sandbox name %q", sandbox)
	}
	return securejoin.SecureJoin(l.dir, sandbox+eventSuffix)
}

// Log appends an event to the sandbox's audit log.
func (l *Logger) Log(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	path, err := l.eventPath(event.Sandbox)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogEvent is a convenience method that creates and logs an event.
func (l *Logger) LogEvent(eventType EventType, sandbox, details string) error {
	return l.Log(Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Sandbox:   sandbox,
		Details:   details,
	})
}

// Events reads all events for a sandbox in chronological order.
func (l *Logger) Events(sandbox string) ([]Event, error) {
	path, err := l.eventPath(sandbox)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading audit log: %w", err)
	}

	return events, nil
}

// Sandboxes returns the names of sandboxes that have a log, sorted.
func (l *Logger) Sandboxes() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audit directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, eventSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, eventSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes the audit log for a sandbox.
func (l *Logger) Remove(sandbox string) error {
	path, err := l.eventPath(sandbox)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Prune removes logs not written to for longer than maxAge and returns how
// many were removed.
func (l *Logger) Prune(maxAge time.Duration) (int, error) {
	names, err := l.Sandboxes()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, name := range names {
		info, err := os.Stat(filepath.Join(l.dir, name+eventSuffix))
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := l.Remove(name); err == nil {
			removed++
		}
	}
	return removed, nil
}
