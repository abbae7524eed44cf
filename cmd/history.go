package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Display the lifecycle events of a sandbox",
	Long: `Display the audit trail of a sandbox: request, port acquisition,
container creation, execs, tunnel discovery and teardown. Histories
outlive the sandbox, so this also works after it is gone.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var historyJSON bool

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "jsonl", false, "Output events as JSON lines")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	events, err := c.History(context.Background(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, e := range events {
		if historyJSON {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}
			fmt.Fprintln(out, string(data))
			continue
		}

		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		if e.Details != "" {
			fmt.Fprintf(out, "[%s] %-8s %s (%s)\n", ts, e.Type, e.Sandbox, e.Details)
		} else {
			fmt.Fprintf(out, "[%s] %-8s %s\n", ts, e.Type, e.Sandbox)
		}
	}

	return nil
}
