package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"coalmine/pkg/api"
)

func newServeCmd(o *options) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the election state, result log and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkPrerequisites(o.cfg); err != nil {
				return withCode(exitPrerequisite, err)
			}
			ctx := cmd.Context()

			conns := newBackends(o.cfg)
			defer conns.Close()
			claimer, err := conns.claimer(ctx)
			if err != nil {
				return withCode(exitStorage, err)
			}
			defer claimer.Close()
			results, err := conns.resultLog(ctx)
			if err != nil {
				return withCode(exitStorage, err)
			}
			defer results.Close()

			srv := api.NewServer(api.Config{
				Addr:    addr,
				Claimer: claimer,
				Results: results,
				Logger:  o.logger,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(srv.Start)
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
