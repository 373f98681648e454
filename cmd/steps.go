package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Inspect and maintain pipeline steps",
}

var (
	stepsListProbe bool
	stepsListState string
)

var stepsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show every step with its update state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tr, cleanup, err := newTracker(ctx, stepsListProbe)
		if err != nil {
			return err
		}
		defer cleanup()

		rows, err := tr.StepsTable(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "URI\tSTATE\tUPDATE\tLATEST\tCHARTS\tUSAGES")
		for _, row := range rows {
			if stepsListState != "" && string(row.UpdateState) != stepsListState {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
				row.URI, row.State, row.UpdateState, row.LatestVersion,
				row.ChartCount, row.ActiveUsages)
		}
		return w.Flush()
	},
}

func init() {
	stepsListCmd.Flags().BoolVar(&stepsListProbe, "probe-origins", false, "probe upstream origins for newer data")
	stepsListCmd.Flags().StringVar(&stepsListState, "update-state", "", "only show steps in this update state")
	stepsCmd.AddCommand(stepsListCmd)
	rootCmd.AddCommand(stepsCmd)
}
