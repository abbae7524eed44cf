package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow tunnel endpoints announced by the server",
	Long: `Subscribe to the server's event stream and show every tunnel
endpoint as sandboxes publish it.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchPlain bool

func init() {
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Print one endpoint per line instead of the live view")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watchPlain {
		out := cmd.OutOrStdout()
		err := tui.SimpleWatch(ctx, c.Events, func(url string) {
			fmt.Fprintln(out, url)
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	err = tui.RunWatch(ctx, serverURL, c.Events)
	if ctx.Err() != nil || errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
