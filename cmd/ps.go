package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/api"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/tui"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List live sandboxes",
	Args:  cobra.NoArgs,
	RunE:  runPs,
}

var psInteractive bool

func init() {
	psCmd.Flags().BoolVarP(&psInteractive, "interactive", "i", false, "Pick a sandbox to inspect or tear down")
	rootCmd.AddCommand(psCmd)
}

func runPs(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	sandboxes, err := c.Sandboxes(ctx)
	if err != nil {
		return err
	}

	if len(sandboxes) == 0 {
		logInfo("No sandboxes running. Start one with: forage-launch run <repo-url>")
		return nil
	}

	if !psInteractive {
		return writeSandboxTable(cmd.OutOrStdout(), sandboxes)
	}

	result, err := tui.RunPicker(sandboxes)
	if err != nil {
		return err
	}
	switch result.Action {
	case tui.ActionOpen:
		sb := result.Sandbox
		endpoint := sb.TunnelURL
		if endpoint == "" {
			endpoint = fmt.Sprintf("port %d", sb.Port)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", sb.ID, endpoint)
	case tui.ActionDown:
		if err := c.Down(ctx, result.Sandbox.ID); err != nil {
			return err
		}
		logSuccess("Removed sandbox %s", result.Sandbox.ID)
	}
	return nil
}

func writeSandboxTable(out io.Writer, sandboxes []api.Sandbox) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tPORT\tSTATE\tUPTIME\tTUNNEL\tSTATUS")
	fmt.Fprintln(w, "--\t----\t----\t-----\t------\t------\t------")

	for _, sb := range sandboxes {
		state := sb.State
		if sb.Request != "" {
			state = sb.Request
		}
		tunnel := sb.TunnelURL
		if tunnel == "" {
			tunnel = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			sb.ID, sb.Kind, sb.Port, state, sb.Uptime, tunnel, formatStatus(health.Status(sb.Health)))
	}

	return w.Flush()
}

func formatStatus(status health.Status) string {
	switch status {
	case health.StatusHealthy:
		return "✓ healthy"
	case health.StatusStarting:
		return "○ starting"
	case health.StatusStopped:
		return "● stopped"
	default:
		return string(status)
	}
}
