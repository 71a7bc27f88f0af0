package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	config "coalmine/configs"
	"coalmine/pkg/logger"
)

// Exit codes.
const (
	exitOK           = 0
	exitPrerequisite = 1
	exitStorage      = 2
	exitWorkload     = 3
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitPrerequisite
}

// options is shared by every subcommand.
type options struct {
	cfg    *config.Config
	stdout io.Writer
	logger *zap.Logger
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o := &options{cfg: config.LoadConfig(), stdout: stdout}
	root := newRootCmd(o)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	if err != nil {
		l := o.logger
		if l == nil {
			l = logger.Get()
		}
		if code == exitPrerequisite {
			logger.Critical(l, "cannot start", zap.Error(err))
		} else {
			l.Error("run failed", zap.Error(err), zap.Int("exit_code", code))
		}
	}
	if o.logger != nil {
		_ = o.logger.Sync()
	}
	return code
}

func newRootCmd(o *options) *cobra.Command {
	cfg := o.cfg
	root := &cobra.Command{
		Use:   "coalmine",
		Short: "Claim the fleet election or run and record a timed workload",
		Long: `coalmine runs one worker cycle against shared storage.

The first worker to claim the election marker becomes the captain and stops.
Every later worker runs the workload, times it, and appends
"identity,parameter,duration" to the shared result log.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logger.New(logger.Config{
				Level:      cfg.LogLevel,
				Encoding:   cfg.LogEncoding,
				OutputPath: "stderr",
				Service:    "coalmine",
			})
			if err != nil {
				return err
			}
			o.logger = l
			logger.Set(l)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle(cmd.Context(), o)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "shared storage root (file backends)")
	flags.StringVar(&cfg.ElectionBackend, "election-backend", cfg.ElectionBackend, "election marker backend: file, etcd, redis, s3, postgres")
	flags.StringVar(&cfg.ResultsBackend, "results-backend", cfg.ResultsBackend, "result log backend: file, redis, s3, postgres")
	flags.StringVar(&cfg.WorkerID, "id", cfg.WorkerID, "worker identity (defaults to hostname)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	root.AddCommand(
		newLeaderCmd(o),
		newResultsCmd(o),
		newScheduleCmd(o),
		newServeCmd(o),
	)
	return root
}
