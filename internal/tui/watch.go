package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/api"
)

// maxHistory bounds the endpoints kept on screen.
const maxHistory = 10

// Source streams events until ctx ends or fn returns an error.
// client.Client.Events satisfies it.
type Source func(ctx context.Context, fn func(api.EventMessage) error) error

// EventMsg delivers one event to the watch model.
type EventMsg struct {
	Message *string
	At      time.Time
}

// StreamEndedMsg reports that the event stream closed.
type StreamEndedMsg struct {
	Err error
}

type endpoint struct {
	url string
	at  time.Time
}

var (
	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// WatchModel shows the latest tunnel endpoint announced by the server.
type WatchModel struct {
	server   string
	events   <-chan tea.Msg
	spinner  spinner.Model
	current  string
	history  []endpoint
	err      error
	ended    bool
	quitting bool
}

// NewWatch creates a watch view reading messages from events.
func NewWatch(server string, events <-chan tea.Msg) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	return WatchModel{
		server:  server,
		events:  events,
		spinner: s,
	}
}

func waitFor(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return StreamEndedMsg{}
		}
		return msg
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitFor(m.events))
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case EventMsg:
		if msg.Message == nil {
			m.current = ""
		} else {
			m.current = *msg.Message
			m.history = append([]endpoint{{url: m.current, at: msg.At}}, m.history...)
			if len(m.history) > maxHistory {
				m.history = m.history[:maxHistory]
			}
		}
		return m, waitFor(m.events)

	case StreamEndedMsg:
		m.ended = true
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Forage Launch - " + m.server))
	b.WriteString("\n")

	if m.current == "" {
		b.WriteString(m.spinner.View() + " waiting for a tunnel endpoint...\n")
	} else {
		b.WriteString("Latest: " + urlStyle.Render(m.current) + "\n")
	}

	if len(m.history) > 0 {
		b.WriteString("\n")
		for _, e := range m.history {
			b.WriteString(dimStyle.Render(fmt.Sprintf("%s  %s", e.at.Format("15:04:05"), e.url)) + "\n")
		}
	}

	if m.ended {
		if m.err != nil {
			b.WriteString("\n" + errStyle.Render("stream closed: "+m.err.Error()) + "\n")
		} else {
			b.WriteString("\n" + dimStyle.Render("stream closed by server") + "\n")
		}
	}

	b.WriteString(helpStyle.Render("[q] Quit"))
	return b.String()
}

// Err returns the error that ended the stream, if any.
func (m WatchModel) Err() error {
	return m.err
}

// Latest returns the most recent endpoint, or "" when none is known.
func (m WatchModel) Latest() string {
	return m.current
}

// pump forwards events from src into ch until the stream ends.
func pump(ctx context.Context, src Source, ch chan<- tea.Msg) {
	err := src(ctx, func(ev api.EventMessage) error {
		select {
		case ch <- EventMsg{Message: ev.Message, At: time.Now()}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if ctx.Err() != nil {
		return
	}
	select {
	case ch <- StreamEndedMsg{Err: err}:
	case <-ctx.Done():
	}
}

// RunWatch shows events from src until the user quits or the stream ends.
func RunWatch(ctx context.Context, server string, src Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan tea.Msg)
	go pump(ctx, src, ch)

	finalModel, err := tea.NewProgram(NewWatch(server, ch), tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}
	return finalModel.(WatchModel).Err()
}

// SimpleWatch prints one line per announced endpoint until the stream ends.
func SimpleWatch(ctx context.Context, src Source, print func(string)) error {
	return src(ctx, func(ev api.EventMessage) error {
		if ev.Message != nil {
			print(*ev.Message)
		}
		return nil
	})
}
