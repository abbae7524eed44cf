// Package tui provides terminal user interface components for forage-launch.
//
// This package uses the Bubble Tea framework for the client commands that
// benefit from an interactive view.
//
// # Sandbox Picker
//
// The picker lists live sandboxes reported by the server:
//
//	result, err := tui.RunPicker(sandboxes)
//	switch result.Action {
//	case tui.ActionOpen:
//	    // Print result.Sandbox's endpoint
//	case tui.ActionDown:
//	    // Tear down the selected sandbox
//	case tui.ActionQuit:
//	    // Exit
//	}
//
// # Event Watch
//
// RunWatch follows the server's event stream and shows the latest tunnel
// endpoint with a short history. SimpleWatch prints endpoints line by line
// for non-interactive output.
//
// # Dependencies
//
// Uses the Charm libraries:
//   - github.com/charmbracelet/bubbletea - TUI framework
//   - github.com/charmbracelet/bubbles - UI components (list, spinner)
//   - github.com/charmbracelet/lipgloss - Styling
package tui
