package tui

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/api"
)

func strPtr(s string) *string { return &s }

func fakeSource(events []api.EventMessage, end error) Source {
	return func(ctx context.Context, fn func(api.EventMessage) error) error {
		for _, ev := range events {
			if err := fn(ev); err != nil {
				return err
			}
		}
		return end
	}
}

func TestWatchModel_Events(t *testing.T) {
	m := NewWatch("http://localhost:3002", make(chan tea.Msg))
	at := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	newModel, cmd := m.Update(EventMsg{At: at})
	m = newModel.(WatchModel)
	if m.Latest() != "" {
		t.Errorf("Latest() = %q after no-match event, want empty", m.Latest())
	}
	if cmd == nil {
		t.Error("Update should keep reading events")
	}
	if !strings.Contains(m.View(), "waiting for a tunnel endpoint") {
		t.Error("View should show the waiting spinner")
	}

	newModel, _ = m.Update(EventMsg{Message: strPtr("https://one.trycloudflare.com"), At: at})
	m = newModel.(WatchModel)
	if m.Latest() != "https://one.trycloudflare.com" {
		t.Errorf("Latest() = %q", m.Latest())
	}
	view := m.View()
	if !strings.Contains(view, "Latest: ") || !strings.Contains(view, "15:04:05") {
		t.Errorf("View missing latest endpoint or history: %q", view)
	}

	// A later no-match clears the current endpoint but keeps history.
	newModel, _ = m.Update(EventMsg{At: at})
	m = newModel.(WatchModel)
	if m.Latest() != "" || len(m.history) != 1 {
		t.Errorf("Latest() = %q, history = %d; want empty and 1", m.Latest(), len(m.history))
	}
}

func TestWatchModel_HistoryBounded(t *testing.T) {
	m := NewWatch("srv", make(chan tea.Msg))
	for i := 0; i < maxHistory+5; i++ {
		newModel, _ := m.Update(EventMsg{Message: strPtr(fmt.Sprintf("https://%d.trycloudflare.com", i)), At: time.Now()})
		m = newModel.(WatchModel)
	}

	if len(m.history) != maxHistory {
		t.Fatalf("history = %d, want %d", len(m.history), maxHistory)
	}
	want := fmt.Sprintf("https://%d.trycloudflare.com", maxHistory+4)
	if m.history[0].url != want {
		t.Errorf("newest = %q, want %q", m.history[0].url, want)
	}
}

func TestWatchModel_StreamEnded(t *testing.T) {
	m := NewWatch("srv", make(chan tea.Msg))
	newModel, cmd := m.Update(StreamEndedMsg{Err: fmt.Errorf("connection reset")})
	m = newModel.(WatchModel)

	if cmd == nil {
		t.Error("stream end should quit")
	}
	if m.Err() == nil {
		t.Error("Err() should report the stream error")
	}
	if !strings.Contains(m.View(), "stream closed: connection reset") {
		t.Errorf("View = %q, should report the closed stream", m.View())
	}
}

func TestWatchModel_Quit(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		t.Run(key.String(), func(t *testing.T) {
			m := NewWatch("srv", make(chan tea.Msg))
			newModel, cmd := m.Update(key)
			if cmd == nil {
				t.Error("should return tea.Quit")
			}
			if view := newModel.(WatchModel).View(); view != "" {
				t.Errorf("quitting view = %q, want empty", view)
			}
		})
	}
}

func TestWaitFor(t *testing.T) {
	ch := make(chan tea.Msg, 1)
	ch <- EventMsg{Message: strPtr("https://a.trycloudflare.com")}
	if _, ok := waitFor(ch)().(EventMsg); !ok {
		t.Error("waitFor should return the queued message")
	}

	close(ch)
	if _, ok := waitFor(ch)().(StreamEndedMsg); !ok {
		t.Error("waitFor on a closed channel should report the stream end")
	}
}

func TestPump(t *testing.T) {
	events := []api.EventMessage{{}, {Message: strPtr("https://a.trycloudflare.com")}}
	ch := make(chan tea.Msg)
	go pump(context.Background(), fakeSource(events, nil), ch)

	var got []tea.Msg
	for i := 0; i < 3; i++ {
		select {
		case msg := <-ch:
			got = append(got, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d messages", len(got))
		}
	}

	if ev := got[0].(EventMsg); ev.Message != nil {
		t.Errorf("first message = %+v, want no-match", ev)
	}
	if ev := got[1].(EventMsg); ev.Message == nil || *ev.Message != "https://a.trycloudflare.com" {
		t.Errorf("second message = %+v", ev)
	}
	if end := got[2].(StreamEndedMsg); end.Err != nil {
		t.Errorf("end = %+v, want clean end", end)
	}
}

func TestPump_CanceledStopsQuietly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan tea.Msg)
	done := make(chan struct{})
	go func() {
		pump(ctx, fakeSource([]api.EventMessage{{}}, nil), ch)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop after cancel")
	}
}

func TestSimpleWatch(t *testing.T) {
	events := []api.EventMessage{
		{},
		{Message: strPtr("https://a.trycloudflare.com")},
		{Message: strPtr("https://b.trycloudflare.com")},
	}

	var lines []string
	err := SimpleWatch(context.Background(), fakeSource(events, nil), func(s string) {
		lines = append(lines, s)
	})
	if err != nil {
		t.Fatalf("SimpleWatch failed: %v", err)
	}

	want := []string{"https://a.trycloudflare.com", "https://b.trycloudflare.com"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines = %v, want %v", lines, want)
	}
}
