package main

import (
	"context"

	"github.com/spf13/cobra"

	"coalmine/pkg/resilience"
	"coalmine/pkg/schedule"
	"coalmine/pkg/worker"
)

func newScheduleCmd(o *options) *cobra.Command {
	var (
		spec      string
		threshold int
		cooldown  = resilience.DefaultCircuitBreakerConfig().Cooldown
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the worker cycle repeatedly on a cron schedule",
		Long: `Run the worker cycle on a cron schedule until interrupted.

If this worker wins the election it stops, like a one-shot run would.
Consecutive storage failures open a circuit breaker and later cycles are
skipped until the cooldown passes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			s, err := buildStack(ctx, o)
			if err != nil {
				return err
			}
			defer s.Close(context.Background())
			s.worker.LogHost()

			breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
				FailureThreshold: threshold,
				Cooldown:         cooldown,
			})
			sched, err := schedule.New(spec, func(ctx context.Context) error {
				outcome, err := cycle(ctx, s.worker)
				pushMetrics(o, s.worker.ID)
				if err == nil && outcome == worker.OutcomeElected {
					o.logger.Info("elected, stopping schedule")
					cancel()
				}
				return err
			}, breaker, o.logger)
			if err != nil {
				return withCode(exitPrerequisite, err)
			}

			sched.Run(ctx)
			return nil
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "@every 5m", "cron spec or descriptor for the cycle")
	cmd.Flags().IntVar(&threshold, "failure-threshold", resilience.DefaultCircuitBreakerConfig().FailureThreshold, "consecutive failures before cycles are skipped")
	cmd.Flags().DurationVar(&cooldown, "cooldown", cooldown, "how long cycles are skipped once the circuit opens")
	return cmd
}
