package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"coalmine/pkg/models"
)

func newResultsCmd(o *options) *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print the result log, or a per-worker summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkPrerequisites(o.cfg); err != nil {
				return withCode(exitPrerequisite, err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), o.cfg.StorageTimeout)
			defer cancel()

			conns := newBackends(o.cfg)
			defer conns.Close()
			results, err := conns.resultLog(ctx)
			if err != nil {
				return withCode(exitStorage, err)
			}
			defer results.Close()

			recs, err := results.Records(ctx)
			if err != nil {
				return withCode(exitStorage, err)
			}
			if !summary {
				for _, r := range recs {
					fmt.Fprintln(o.stdout, r.String())
				}
				return nil
			}

			tw := tabwriter.NewWriter(o.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "IDENTITY\tRUNS\tMEAN(s)\tMIN(s)\tMAX(s)\ts/UNIT")
			for _, s := range models.Summarize(recs) {
				fmt.Fprintf(tw, "%s\t%d\t%.4f\t%.4f\t%.4f\t%.3g\n", s.Identity, s.Count, s.Mean, s.Min, s.Max, s.SecondsPerUnit)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "print per-identity statistics instead of raw records")
	return cmd
}
