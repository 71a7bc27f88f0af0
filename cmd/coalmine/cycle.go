package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"coalmine/pkg/coordination"
	"coalmine/pkg/metrics"
	tracing "coalmine/pkg/observability"
	"coalmine/pkg/recorder"
	"coalmine/pkg/storage"
	"coalmine/pkg/worker"
	"coalmine/pkg/workload"
)

// stack is everything one worker cycle needs, built once per process.
type stack struct {
	conns   *backends
	claimer coordination.Claimer
	results storage.ResultLog
	worker  *worker.Worker
	tracer  *tracing.Provider
}

func (s *stack) Close(ctx context.Context) {
	if s.results != nil {
		_ = s.results.Close()
	}
	if s.claimer != nil {
		_ = s.claimer.Close()
	}
	if s.conns != nil {
		_ = s.conns.Close()
	}
	if s.tracer != nil {
		_ = s.tracer.Shutdown(ctx)
	}
}

// buildStack checks prerequisites and wires backends. Failures carry exit codes.
func buildStack(ctx context.Context, o *options) (*stack, error) {
	cfg := o.cfg
	if err := checkPrerequisites(cfg); err != nil {
		return nil, withCode(exitPrerequisite, err)
	}

	work, err := newWorkload(cfg)
	if err != nil {
		return nil, withCode(exitPrerequisite, err)
	}

	tcfg := tracing.DefaultConfig("coalmine")
	tcfg.Enabled = cfg.TracingEnabled
	tcfg.Endpoint = cfg.OTLPEndpoint
	tp, err := tracing.Init(ctx, tcfg)
	if err != nil {
		return nil, withCode(exitPrerequisite, err)
	}

	s := &stack{conns: newBackends(cfg), tracer: tp}
	if s.claimer, err = s.conns.claimer(ctx); err != nil {
		s.Close(ctx)
		return nil, withCode(exitStorage, err)
	}
	if s.results, err = s.conns.resultLog(ctx); err != nil {
		s.Close(ctx)
		return nil, withCode(exitStorage, err)
	}

	rec := recorder.New(recorder.Config{
		Workload: work,
		Log:      s.results,
		Logger:   o.logger,
		Stdout:   o.stdout,
		Timeout:  cfg.WorkloadTimeout,
	})
	s.worker = worker.New(worker.Config{
		Identity:        cfg.WorkerID,
		Claimer:         s.claimer,
		ElectionBackend: cfg.ElectionBackend,
		Chooser:         workload.NewUniformChooser(cfg.ParamMin, cfg.ParamMax),
		Recorder:        rec,
		Logger:          o.logger,
	})
	return s, nil
}

// runCycle is the default command: one election attempt, then work if lost.
func runCycle(ctx context.Context, o *options) error {
	s, err := buildStack(ctx, o)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	s.worker.LogHost()
	_, err = cycle(ctx, s.worker)
	pushMetrics(o, s.worker.ID)
	return err
}

// cycle runs the worker once and maps failures to exit codes.
func cycle(ctx context.Context, w *worker.Worker) (worker.Outcome, error) {
	outcome, _, err := w.Run(ctx)
	if err != nil {
		var werr *recorder.WorkloadError
		if errors.As(err, &werr) {
			return outcome, withCode(exitWorkload, err)
		}
		return outcome, withCode(exitStorage, err)
	}
	return outcome, nil
}

func pushMetrics(o *options, instance string) {
	if o.cfg.PushgatewayURL == "" {
		return
	}
	if err := metrics.Push(o.cfg.PushgatewayURL, "coalmine", instance); err != nil {
		o.logger.Warn("metrics push failed", zap.Error(err))
	}
}
