package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"coalmine/pkg/metrics"
	"coalmine/pkg/recorder"
	"coalmine/pkg/resilience"
)

// Cycle is one unit of scheduled work, normally a worker run.
type Cycle func(ctx context.Context) error

// Scheduler runs a Cycle on a cron schedule. Overlapping runs are skipped,
// and a circuit breaker pauses cycles while they keep failing.
type Scheduler struct {
	cron    *cron.Cron
	cycle   Cycle
	breaker *resilience.CircuitBreaker
	logger  *zap.Logger
	ctx     context.Context
}

// New validates spec (standard 5-field cron or a descriptor such as
// "@every 1m") and prepares a scheduler.
func New(spec string, cycle Cycle, breaker *resilience.CircuitBreaker, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}

	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		cycle:   cycle,
		breaker: breaker,
		logger:  logger,
		ctx:     context.Background(),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Tick(s.ctx) }); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Run blocks until ctx is cancelled, then waits for a running cycle to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Time("next", s.cron.Entries()[0].Next))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Tick runs a single cycle through the circuit breaker. Only storage and
// election failures count against the breaker; a failed or timed out
// workload says nothing about the backends.
func (s *Scheduler) Tick(ctx context.Context) error {
	var cycleErr error
	err := s.breaker.Execute(func() error {
		cycleErr = s.cycle(ctx)
		var werr *recorder.WorkloadError
		if errors.As(cycleErr, &werr) {
			return nil
		}
		return cycleErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		metrics.CyclesSkipped.Inc()
		s.logger.Warn("skipping cycle, storage keeps failing", zap.Stringer("circuit", s.breaker.State()))
		return err
	}
	if cycleErr != nil {
		s.logger.Error("worker cycle failed", zap.Error(cycleErr))
	}
	return cycleErr
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
