package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health and capacity",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	h, err := c.Health(context.Background())
	if err != nil {
		return err
	}

	tunnel := "disabled"
	if h.Tunnel {
		tunnel = "enabled"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server:     %s (%s)\n", serverURL, h.Status)
	fmt.Fprintf(out, "Runtime:    %s\n", h.Runtime)
	fmt.Fprintf(out, "Sandboxes:  %d\n", h.Sandboxes)
	fmt.Fprintf(out, "Ports:      %d free of %d\n", h.PortsFree, h.PortsTotal)
	fmt.Fprintf(out, "Observers:  %d\n", h.Observers)
	fmt.Fprintf(out, "Tunnels:    %s\n", tunnel)
	return nil
}
