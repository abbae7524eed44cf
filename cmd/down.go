package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
)

var downCmd = &cobra.Command{
	Use:   "down <id>",
	Short: "Tear down a sandbox and free its port",
	Args:  cobra.ExactArgs(1),
	RunE:  runDown,
}

func init() {
	rootCmd.AddCommand(downCmd)
}

func runDown(cmd *cobra.Command, args []string) error {
	id := args[0]
	c, err := newClient()
	if err != nil {
		return err
	}

	logging.Debug("removing sandbox", "id", id)
	logInfo("Removing sandbox %s...", id)

	if err := c.Down(context.Background(), id); err != nil {
		return err
	}

	logSuccess("Removed sandbox %s", id)
	return nil
}
