package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"coalmine/pkg/coordination"
)

func newLeaderCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "leader",
		Short: "Show who holds the election marker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkPrerequisites(o.cfg); err != nil {
				return withCode(exitPrerequisite, err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), o.cfg.StorageTimeout)
			defer cancel()

			conns := newBackends(o.cfg)
			defer conns.Close()
			claimer, err := conns.claimer(ctx)
			if err != nil {
				return withCode(exitStorage, err)
			}
			defer claimer.Close()

			msg, err := claimer.Leader(ctx)
			switch {
			case errors.Is(err, coordination.ErrNotClaimed):
				fmt.Fprintln(o.stdout, "unclaimed")
				return nil
			case err != nil:
				return withCode(exitStorage, err)
			}
			fmt.Fprint(o.stdout, msg)
			return nil
		},
	}
}
