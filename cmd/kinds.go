package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the project kinds the server can run",
	Args:  cobra.NoArgs,
	RunE:  runKinds,
}

var kindsVerbose bool

func init() {
	kindsCmd.Flags().BoolVarP(&kindsVerbose, "long", "l", false, "Show the install, build and run steps")
	rootCmd.AddCommand(kindsCmd)
}

func runKinds(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	kinds, err := c.Kinds(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if kindsVerbose {
		for _, k := range kinds {
			fmt.Fprintf(out, "%s (port %d)\n", k.Name, k.Port)
			if k.Description != "" {
				fmt.Fprintf(out, "  %s\n", k.Description)
			}
			if k.Install != "" {
				fmt.Fprintf(out, "  install: %s\n", k.Install)
			}
			if k.Build != "" {
				fmt.Fprintf(out, "  build:   %s\n", k.Build)
			}
			fmt.Fprintf(out, "  run:     %s\n\n", k.Run)
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tPORT\tDESCRIPTION")
	fmt.Fprintln(w, "----\t----\t-----------")
	for _, k := range kinds {
		fmt.Fprintf(w, "%s\t%d\t%s\n", k.Name, k.Port, k.Description)
	}
	return w.Flush()
}
