// Package tui provides terminal user interface components for forage-launch
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/api"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/health"
)

// Action represents the action to take after picker selection
type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionDown
	ActionQuit
)

// PickerResult holds the result of the picker
type PickerResult struct {
	Action  Action
	Sandbox *api.Sandbox
}

// sandboxItem implements list.Item for sandbox display
type sandboxItem struct {
	sandbox api.Sandbox
}

func (i sandboxItem) Title() string {
	return i.sandbox.ID
}

func (i sandboxItem) Description() string {
	endpoint := i.sandbox.TunnelURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("port %d", i.sandbox.Port)
	}
	return fmt.Sprintf("%s %s | %s | %s | %s",
		statusIcon(i.sandbox.Health),
		i.sandbox.Kind,
		i.sandbox.Uptime,
		endpoint,
		truncateURL(i.sandbox.RepoURL, 40),
	)
}

func (i sandboxItem) FilterValue() string {
	return i.sandbox.ID + " " + i.sandbox.RepoURL
}

func statusIcon(status string) string {
	switch health.Status(status) {
	case health.StatusHealthy:
		return "✓"
	case health.StatusStarting:
		return "○"
	default:
		return "●"
	}
}

func truncateURL(u string, maxLen int) string {
	u = strings.TrimPrefix(u, "https://")
	if len(u) <= maxLen {
		return u
	}
	return "..." + u[len(u)-maxLen+3:]
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// Model is the bubbletea model for the sandbox picker
type Model struct {
	list     list.Model
	result   PickerResult
	quitting bool
	width    int
	height   int
}

// NewPicker creates a new sandbox picker
func NewPicker(sandboxes []api.Sandbox) Model {
	items := make([]list.Item, len(sandboxes))
	for i, sb := range sandboxes {
		items[i] = sandboxItem{sandbox: sb}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	l := list.New(items, delegate, 80, 20)
	l.Title = "Forage Launch - Sandboxes"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return Model{list: l}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		// Don't handle keys if filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(sandboxItem); ok {
				sb := item.sandbox
				m.result = PickerResult{Action: ActionOpen, Sandbox: &sb}
				m.quitting = true
				return m, tea.Quit
			}

		case "d":
			if item, ok := m.list.SelectedItem().(sandboxItem); ok {
				sb := item.sandbox
				m.result = PickerResult{Action: ActionDown, Sandbox: &sb}
				m.quitting = true
				return m, tea.Quit
			}

		case "q", "esc":
			m.result = PickerResult{Action: ActionQuit}
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	help := helpStyle.Render("[enter] Show endpoint  [d] Down  [/] Filter  [q] Quit")

	return m.list.View() + "\n" + help
}

// Result returns the picker result
func (m Model) Result() PickerResult {
	return m.result
}

// RunPicker runs the interactive sandbox picker
func RunPicker(sandboxes []api.Sandbox) (PickerResult, error) {
	if len(sandboxes) == 0 {
		return PickerResult{Action: ActionNone}, nil
	}

	p := tea.NewProgram(NewPicker(sandboxes), tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}

	return finalModel.(Model).Result(), nil
}

// SimplePicker is a non-interactive listing of sandboxes
func SimplePicker(sandboxes []api.Sandbox) string {
	var sb strings.Builder

	sb.WriteString("Forage Launch - Sandboxes\n")
	sb.WriteString(strings.Repeat("─", 60) + "\n\n")

	if len(sandboxes) == 0 {
		sb.WriteString("No sandboxes running.\n")
		sb.WriteString("Start one with: forage-launch run <repo-url> -k <kind>\n")
		return sb.String()
	}

	for i, s := range sandboxes {
		sb.WriteString(fmt.Sprintf("%d. %s %s (%s)\n",
			i+1, statusIcon(s.Health), s.ID, s.Kind))
		sb.WriteString(fmt.Sprintf("   Port: %d | Uptime: %s | Repo: %s\n",
			s.Port, s.Uptime, truncateURL(s.RepoURL, 40)))
		if s.TunnelURL != "" {
			sb.WriteString(fmt.Sprintf("   Tunnel: %s\n", s.TunnelURL))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
