package main

import (
	"fmt"
	"time"

	"github.com/himsog/himsog/libs/runtime"
	"github.com/spf13/cobra"
)

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Mark overdue appointments as no-show once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := runtime.SignalContext()
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.pool.Close()

			store, _ := a.store()
			report, err := a.appointments(store).SweepNoShows(ctx, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d no_show=%d completed=%d\n",
				report.Scanned, report.NoShow, report.Completed)
			return nil
		},
	}
}
