package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/api"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run <repo-url>",
	Short: "Build and run a repository in a new sandbox",
	Long: `Ask the server to clone, build and run a repository.

The command waits until the sandbox is reachable and prints its
address, plus the public tunnel URL when tunnels are enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var runKind string

func init() {
	runCmd.Flags().StringVarP(&runKind, "kind", "k", "", "Project kind (see 'forage-launch kinds'); the server default when empty")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	logging.Debug("requesting sandbox", "repo", args[0], "kind", runKind, "server", serverURL)
	logInfo("Provisioning %s...", args[0])

	res, err := c.Run(context.Background(), api.RunRequest{RepoURL: args[0], Kind: runKind})
	if err != nil {
		return err
	}

	logSuccess("Sandbox %s (%s) is up", res.ID, res.Kind)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  Address: %s\n", res.Address)
	if res.TunnelURL != "" {
		fmt.Fprintf(out, "  Tunnel:  %s\n", res.TunnelURL)
	}
	fmt.Fprintf(out, "\nTear it down with: forage-launch down %s\n", res.ID)
	return nil
}
