package recorder

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"coalmine/pkg/metrics"
	"coalmine/pkg/models"
	tracing "coalmine/pkg/observability"
	"coalmine/pkg/storage"
	"coalmine/pkg/workload"
)

const tracerScope = "coalmine/recorder"

// WorkloadError wraps a failure of the workload itself.
type WorkloadError struct {
	Workload  string
	Parameter int
	Err       error
}

func (e *WorkloadError) Error() string {
	return fmt.Sprintf("workload %s(%d) failed: %v", e.Workload, e.Parameter, e.Err)
}

func (e *WorkloadError) Unwrap() error { return e.Err }

// StorageError wraps a failure to persist a record.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to record result: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Config holds recorder dependencies.
type Config struct {
	Workload workload.Workload
	Log      storage.ResultLog
	Logger   *zap.Logger
	Stdout   io.Writer     // records are echoed here; defaults to os.Stdout
	Timeout  time.Duration // workload bound; 0 means none
}

// Recorder runs the workload, times it, and appends the result.
type Recorder struct {
	work    workload.Workload
	log     storage.ResultLog
	logger  *zap.Logger
	stdout  io.Writer
	timeout time.Duration
	now     func() time.Time
}

// New builds a Recorder.
func New(cfg Config) *Recorder {
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		work:    cfg.Workload,
		log:     cfg.Log,
		logger:  logger,
		stdout:  stdout,
		timeout: cfg.Timeout,
		now:     time.Now,
	}
}

// RunAndRecord executes the workload with parameter, builds a record for
// identity and appends it to the result log.
func (r *Recorder) RunAndRecord(ctx context.Context, identity string, parameter int) (models.Record, error) {
	name := r.work.Name()
	ctx, span := tracing.Start(ctx, tracerScope, "recorder.run_and_record",
		attribute.String("worker.identity", identity),
		attribute.String("workload.name", name),
		attribute.Int("workload.parameter", parameter),
	)
	defer span.End()

	elapsed, err := r.run(ctx, parameter)
	if err != nil {
		metrics.RecordRun(name, "workload_error", 0)
		werr := &WorkloadError{Workload: name, Parameter: parameter, Err: err}
		tracing.SetError(span, werr)
		return models.Record{}, werr
	}

	rec := models.NewRecord(identity, parameter, elapsed)
	span.SetAttributes(attribute.Float64("workload.duration_seconds", rec.Duration))

	start := r.now()
	if err := r.log.Append(ctx, rec); err != nil {
		metrics.RecordRun(name, "storage_error", rec.Duration)
		serr := &StorageError{Err: err}
		tracing.SetError(span, serr)
		return models.Record{}, serr
	}
	metrics.AppendDuration.Observe(time.Since(start).Seconds())
	metrics.RecordRun(name, "success", rec.Duration)

	// Diagnostic echo only; the record is already durable.
	if _, err := io.WriteString(r.stdout, rec.String()+"\n"); err != nil {
		r.logger.Warn("failed to echo record", zap.Error(err))
	}
	r.logger.Info("recorded result",
		zap.String("identity", rec.Identity),
		zap.Int("parameter", rec.Parameter),
		zap.Float64("duration_seconds", rec.Duration),
	)
	return rec, nil
}

func (r *Recorder) run(ctx context.Context, parameter int) (time.Duration, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := r.now()
	if err := r.work.Run(ctx, parameter); err != nil {
		return 0, err
	}
	return r.now().Sub(start), nil
}
