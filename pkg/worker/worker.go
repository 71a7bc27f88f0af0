package worker

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"coalmine/pkg/coordination"
	"coalmine/pkg/metrics"
	"coalmine/pkg/models"
	"coalmine/pkg/recorder"
	"coalmine/pkg/workload"
)

// Outcome is what a worker cycle ended up doing.
type Outcome int

const (
	// OutcomeNone is returned alongside errors.
	OutcomeNone Outcome = iota
	// OutcomeElected means this worker claimed the election and did no work.
	OutcomeElected
	// OutcomeRecorded means the election was already claimed and a record was appended.
	OutcomeRecorded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeElected:
		return "elected"
	case OutcomeRecorded:
		return "recorded"
	case OutcomeNone:
		return "none"
	default:
		return "unknown"
	}
}

// Config holds worker dependencies.
type Config struct {
	Identity        string
	Claimer         coordination.Claimer
	ElectionBackend string
	Chooser         workload.ParameterChooser
	Recorder        *recorder.Recorder
	Logger          *zap.Logger
}

// Worker runs one election-then-work cycle.
type Worker struct {
	ID string

	claimer  coordination.Claimer
	backend  string
	chooser  workload.ParameterChooser
	recorder *recorder.Recorder
	logger   *zap.Logger
}

// New builds a Worker. An empty identity is resolved from the hostname.
func New(cfg Config) *Worker {
	id := cfg.Identity
	if id == "" {
		id = ResolveIdentity()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		ID:       id,
		claimer:  cfg.Claimer,
		backend:  cfg.ElectionBackend,
		chooser:  cfg.Chooser,
		recorder: cfg.Recorder,
		logger:   logger.With(zap.String("worker", id)),
	}
}

// ResolveIdentity returns the hostname, or a random worker id if it is unavailable.
func ResolveIdentity() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "worker-" + uuid.New().String()[:8]
	}
	return hostname
}

// Run claims the election once. The winner stops there; everyone else runs
// the workload and records the result.
func (w *Worker) Run(ctx context.Context) (Outcome, models.Record, error) {
	won, err := w.claimer.TryClaim(ctx, w.ID)
	metrics.RecordClaim(w.backend, won, err)
	if err != nil {
		// Not a lost race: the outcome of the claim is unknown.
		return OutcomeNone, models.Record{}, fmt.Errorf("election claim failed: %w", err)
	}
	if won {
		w.logger.Info("I'm assuming command")
		return OutcomeElected, models.Record{}, nil
	}

	w.logger.Info("election already claimed, running workload")
	parameter := w.chooser.ChooseParameter()
	rec, err := w.recorder.RunAndRecord(ctx, w.ID, parameter)
	if err != nil {
		return OutcomeNone, models.Record{}, err
	}
	return OutcomeRecorded, rec, nil
}

// LogHost logs the host resources that explain a timing sample.
func (w *Worker) LogHost() {
	fields := []zap.Field{zap.Int("cpus", runtime.NumCPU())}
	if v, err := mem.VirtualMemory(); err == nil {
		fields = append(fields, zap.Uint64("mem_total_mb", v.Total/1024/1024))
	} else {
		w.logger.Debug("failed to detect memory", zap.Error(err))
	}
	if avg, err := load.Avg(); err == nil {
		fields = append(fields, zap.Float64("load1", avg.Load1))
	}
	w.logger.Info("worker starting", fields...)
}
