package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/client"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
)

// serverEnv overrides the default --server value.
const serverEnv = "FORAGE_LAUNCH_SERVER"

const defaultServer = "http://localhost:3002"

var (
	verbose    bool
	jsonOutput bool
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "forage-launch",
	Short: "On-demand preview sandboxes for web repositories",
	Long: `forage-launch builds and runs web repositories in throwaway sandboxes.

Each sandbox is a container that:
  - Clones the repository and runs its install, build and run steps
  - Publishes the app on a port taken from a fixed pool
  - Optionally exposes it through a cloudflared quick tunnel

Run "forage-launch serve" on the host, then use the other commands
to request and inspect sandboxes over its HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose, jsonOutput, os.Stderr)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServerURL(), "forage-launch server URL (env "+serverEnv+")")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func defaultServerURL() string {
	if u := os.Getenv(serverEnv); u != "" {
		return u
	}
	return defaultServer
}

// newClient returns a client for the --server URL.
func newClient() (*client.Client, error) {
	return client.New(serverURL)
}

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)
